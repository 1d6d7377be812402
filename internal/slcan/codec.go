// Package slcan implements the Lawicel ASCII serial-line CAN protocol used
// by SLCAN USB adapters.
package slcan

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/kamilk/go-radar-driver/internal/can"
)

// Codec translates frames to and from SLCAN ASCII records:
//
//	t<iii><l><dd...>\r   standard data frame
//	T<iiiiiiii><l>...\r  extended data frame
//	r<iii><l>\r          standard RTR frame
type Codec struct{}

// Encode renders one frame as an SLCAN record.
func (Codec) Encode(fr can.Frame) []byte {
	var b bytes.Buffer
	ext := fr.ID&can.EFFFlag != 0
	rtr := fr.ID&can.RTRFlag != 0
	switch {
	case rtr && ext:
		b.WriteByte('R')
	case rtr:
		b.WriteByte('r')
	case ext:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}
	if ext {
		fmt.Fprintf(&b, "%08X", fr.ID&can.EFFMask)
	} else {
		fmt.Fprintf(&b, "%03X", fr.ID&can.SFFMask)
	}
	b.WriteByte('0' + fr.Len)
	if !rtr {
		for _, d := range fr.Payload() {
			fmt.Fprintf(&b, "%02X", d)
		}
	}
	b.WriteByte('\r')
	return b.Bytes()
}

// DecodeStream drains complete records from acc, invoking onFrame for every
// parseable data frame. Unparseable records and command echoes are skipped.
func (Codec) DecodeStream(acc *bytes.Buffer, onFrame func(can.Frame)) {
	for {
		raw := acc.Bytes()
		i := bytes.IndexAny(raw, "\r\n")
		if i < 0 {
			return
		}
		line := string(raw[:i])
		acc.Next(i + 1)
		if fr, ok := parseRecord(line); ok {
			onFrame(fr)
		}
	}
}

func parseRecord(line string) (can.Frame, bool) {
	if len(line) == 0 {
		return can.Frame{}, false
	}
	var idLen int
	var flags uint32
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		flags = can.EFFFlag
	case 'r':
		idLen = 3
		flags = can.RTRFlag
	case 'R':
		idLen = 8
		flags = can.EFFFlag | can.RTRFlag
	default:
		return can.Frame{}, false
	}
	if len(line) < 1+idLen+1 {
		return can.Frame{}, false
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return can.Frame{}, false
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > 8 {
		return can.Frame{}, false
	}
	fr := can.Frame{ID: uint32(id) | flags, Len: uint8(dlc)}
	if flags&can.RTRFlag == 0 {
		hexData := line[1+idLen+1:]
		if len(hexData) < dlc*2 {
			return can.Frame{}, false
		}
		for i := 0; i < dlc; i++ {
			b, err := strconv.ParseUint(hexData[i*2:i*2+2], 16, 8)
			if err != nil {
				return can.Frame{}, false
			}
			fr.Data[i] = uint8(b)
		}
	}
	return fr, true
}
