// Package vehicles holds vehicle-family data consumed by the radar driver:
// static keepalive frame tables, control-message signal values, the track-id
// window and the signal databases. The layouts and constants were observed
// on Toyota TSS-P and TSS 2.0 radar installations; they are data, not
// architecture, and should not be assumed to generalize further.
package vehicles

import (
	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/codec"
	"github.com/kamilk/go-radar-driver/internal/keepalive"
	"github.com/kamilk/go-radar-driver/internal/track"
)

// Profile bundles everything vehicle-specific the driver needs.
type Profile struct {
	Name         string
	TrackWindow  can.IDRange
	StatusID     uint32
	TrackSignals track.SignalNames
	RadarDB      codec.Loader
	ControlDB    codec.Loader
	Static       []keepalive.FrameSpec
	Startup      []keepalive.ControlSpec
	Control      keepalive.ControlSpec
}

// Lookup resolves a registered profile by name.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// Names lists the registered profile names.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for n := range profiles {
		out = append(out, n)
	}
	return out
}

const (
	trackWindowFirst = 0x210
	trackWindowLast  = 0x21F
	radarStatusID    = 0x4FF
)

var trackSignals = track.SignalNames{
	Valid:    "VALID",
	LongDist: "LONG_DIST",
	LatDist:  "LAT_DIST",
	RelSpeed: "REL_SPEED",
	NewTrack: "NEW_TRACK",
}

// radarDB describes the sixteen track slot messages. All Toyota signals are
// Motorola byte order.
func radarDB() (codec.Codec, error) {
	msgs := make([]codec.Message, 0, 16)
	for i := uint32(0); i < 16; i++ {
		msgs = append(msgs, codec.Message{
			Name:   trackMessageName(i),
			ID:     trackWindowFirst + i,
			Length: 8,
			Signals: []codec.Signal{
				{Name: "LONG_DIST", Start: 7, Length: 13, Order: codec.BigEndian, Factor: 0.05},
				{Name: "LAT_DIST", Start: 10, Length: 11, Order: codec.BigEndian, Signed: true, Factor: 0.04},
				{Name: "REL_SPEED", Start: 31, Length: 12, Order: codec.BigEndian, Signed: true, Factor: 0.025},
				{Name: "NEW_TRACK", Start: 35, Length: 1, Order: codec.BigEndian},
				{Name: "VALID", Start: 34, Length: 1, Order: codec.BigEndian},
			},
		})
	}
	return codec.NewDatabase(msgs...)
}

func trackMessageName(slot uint32) string {
	const hex = "0123456789ABCDEF"
	return "TRACK_A_" + string(hex[slot&0xF])
}

// controlDB describes the powertrain-bus messages the keepalive loop encodes.
func controlDB() (codec.Codec, error) {
	return codec.NewDatabase(
		codec.Message{
			Name: "ACC_CONTROL", ID: 0x343, Length: 8,
			Signals: []codec.Signal{
				{Name: "ACCEL_CMD", Start: 7, Length: 16, Order: codec.BigEndian, Signed: true, Factor: 0.001, Min: -20, Max: 20},
				{Name: "SET_ME_X63", Start: 23, Length: 8, Order: codec.BigEndian},
				{Name: "CANCEL_REQ", Start: 24, Length: 1, Order: codec.BigEndian},
				{Name: "RELEASE_STANDSTILL", Start: 29, Length: 1, Order: codec.BigEndian},
				{Name: "SET_ME_1", Start: 30, Length: 1, Order: codec.BigEndian},
				{Name: "CHECKSUM", Start: 63, Length: 8, Order: codec.BigEndian},
			},
		},
		codec.Message{
			Name: "SPEED", ID: 0xB4, Length: 8,
			Signals: []codec.Signal{
				{Name: "ENCODER", Start: 39, Length: 8, Order: codec.BigEndian},
				{Name: "SPEED", Start: 47, Length: 16, Order: codec.BigEndian, Factor: 0.01, Min: 0, Max: 400},
				{Name: "CHECKSUM", Start: 63, Length: 8, Order: codec.BigEndian},
			},
		},
		codec.Message{
			Name: "PCM_CRUISE", ID: 0x1D6, Length: 8,
			Signals: []codec.Signal{
				{Name: "CRUISE_STATE", Start: 3, Length: 4, Order: codec.BigEndian},
				{Name: "GAS_RELEASED", Start: 4, Length: 1, Order: codec.BigEndian},
				{Name: "STANDSTILL_ON", Start: 12, Length: 1, Order: codec.BigEndian},
				{Name: "ACCEL_NET", Start: 23, Length: 16, Order: codec.BigEndian, Signed: true, Factor: 0.001},
				{Name: "CHECKSUM", Start: 63, Length: 8, Order: codec.BigEndian},
			},
		},
		codec.Message{
			Name: "PCM_CRUISE_2", ID: 0x1D7, Length: 8,
			Signals: []codec.Signal{
				{Name: "LOW_SPEED_LOCKOUT", Start: 14, Length: 2, Order: codec.BigEndian},
				{Name: "MAIN_ON", Start: 15, Length: 1, Order: codec.BigEndian},
				{Name: "SET_SPEED", Start: 23, Length: 8, Order: codec.BigEndian},
				{Name: "CHECKSUM", Start: 63, Length: 8, Order: codec.BigEndian},
			},
		},
		codec.Message{
			Name: "PCM_CRUISE_SM", ID: 0x1D3, Length: 8,
			Signals: []codec.Signal{
				{Name: "CRUISE_CONTROL_STATE", Start: 11, Length: 4, Order: codec.BigEndian},
				{Name: "MAIN_ON", Start: 15, Length: 1, Order: codec.BigEndian},
				{Name: "UI_SET_SPEED", Start: 31, Length: 8, Order: codec.BigEndian},
			},
		},
	)
}

// accNeutral is the "alive, passive" control frame: no acceleration request,
// standstill release asserted, cancel not requested.
var accNeutral = keepalive.ControlSpec{
	Message: "ACC_CONTROL",
	Signals: map[string]float64{
		"ACCEL_CMD":          0,
		"SET_ME_X63":         0x63,
		"SET_ME_1":           1,
		"RELEASE_STANDSTILL": 1,
		"CANCEL_REQ":         0,
		"CHECKSUM":           113,
	},
}

// tsspStatic is the DSU chatter observed on TSS-P (2017 Prius family) cars.
var tsspStatic = []keepalive.FrameSpec{
	{ID: 0x141, Channel: keepalive.ChannelRadar, PeriodTicks: 2, Payload: []byte{0x00, 0x00, 0x00, 0x46}},
	{ID: 0x128, Channel: keepalive.ChannelRadar, PeriodTicks: 3, Payload: []byte{0xf4, 0x01, 0x90, 0x83, 0x00, 0x37}},
	{ID: 0x283, Channel: keepalive.ChannelCar, PeriodTicks: 3, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x8c}},
	{ID: 0x344, Channel: keepalive.ChannelCar, PeriodTicks: 5, Payload: []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x50}},
	{ID: 0x160, Channel: keepalive.ChannelRadar, PeriodTicks: 7, Payload: []byte{0x00, 0x00, 0x08, 0x12, 0x01, 0x31, 0x9c, 0x51}},
	{ID: 0x161, Channel: keepalive.ChannelRadar, PeriodTicks: 7, Payload: []byte{0x00, 0x1e, 0x00, 0x00, 0x00, 0x80, 0x07}},
	{ID: 0x365, Channel: keepalive.ChannelCar, PeriodTicks: 20, Payload: []byte{0x00, 0x00, 0x00, 0x80, 0xfc, 0x00, 0x08}},
	{ID: 0x366, Channel: keepalive.ChannelCar, PeriodTicks: 20, Payload: []byte{0x00, 0x72, 0x07, 0xff, 0x09, 0xfe, 0x00}},
	{ID: 0x4CB, Channel: keepalive.ChannelCar, PeriodTicks: 100, Payload: []byte{0x0c, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
}

// tss2Static is the more aggressive table used on 2019+ (TSS 2.0) cars.
var tss2Static = []keepalive.FrameSpec{
	{ID: 0x141, Channel: keepalive.ChannelCar, PeriodTicks: 2, Payload: []byte{0x00, 0x00, 0x00, 0x46}},
	{ID: 0x128, Channel: keepalive.ChannelRadar, PeriodTicks: 3, Payload: []byte{0xf4, 0x01, 0x90, 0x83, 0x00, 0x37}},
	{ID: 0x283, Channel: keepalive.ChannelCar, PeriodTicks: 3, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x8c}},
	{ID: 0x344, Channel: keepalive.ChannelCar, PeriodTicks: 5, Payload: []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x50}},
	{ID: 0x160, Channel: keepalive.ChannelRadar, PeriodTicks: 7, Payload: []byte{0x00, 0x00, 0x08, 0x12, 0x01, 0x31, 0x9c, 0x51}},
	{ID: 0x161, Channel: keepalive.ChannelRadar, PeriodTicks: 7, Payload: []byte{0x00, 0x1e, 0x00, 0x00, 0x00, 0x80, 0x07}},
	{ID: 0x365, Channel: keepalive.ChannelCar, PeriodTicks: 20, Payload: []byte{0x00, 0x00, 0x00, 0x80, 0x03, 0x00, 0x08}},
	{ID: 0x366, Channel: keepalive.ChannelCar, PeriodTicks: 20, Payload: []byte{0x00, 0x00, 0x4d, 0x82, 0x40, 0x02, 0x00}},
	{ID: 0x4CB, Channel: keepalive.ChannelCar, PeriodTicks: 100, Payload: []byte{0x0c, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	{ID: 0x1D4, Channel: keepalive.ChannelCar, PeriodTicks: 3, Payload: make([]byte, 8)},
	{ID: 0x620, Channel: keepalive.ChannelCar, PeriodTicks: 20, Payload: make([]byte, 8)},
}

var profiles = map[string]Profile{
	"toyota_tssp": {
		Name:         "toyota_tssp",
		TrackWindow:  can.IDRange{First: trackWindowFirst, Last: trackWindowLast},
		StatusID:     radarStatusID,
		TrackSignals: trackSignals,
		RadarDB:      radarDB,
		ControlDB:    controlDB,
		Static:       tsspStatic,
		Startup: []keepalive.ControlSpec{
			{Message: "SPEED", Signals: map[string]float64{"ENCODER": 0, "SPEED": 1.44, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE", Signals: map[string]float64{"CRUISE_STATE": 9, "GAS_RELEASED": 0, "STANDSTILL_ON": 0, "ACCEL_NET": 0, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE_2", Signals: map[string]float64{"MAIN_ON": 0, "LOW_SPEED_LOCKOUT": 0, "SET_SPEED": 0, "CHECKSUM": 0}},
			{Message: "ACC_CONTROL", Signals: map[string]float64{"ACCEL_CMD": 0, "SET_ME_X63": 0, "RELEASE_STANDSTILL": 0, "SET_ME_1": 0, "CANCEL_REQ": 0, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE_SM", Signals: map[string]float64{"MAIN_ON": 0, "CRUISE_CONTROL_STATE": 0, "UI_SET_SPEED": 0}},
		},
		Control: accNeutral,
	},
	"toyota_tss2": {
		Name:         "toyota_tss2",
		TrackWindow:  can.IDRange{First: trackWindowFirst, Last: trackWindowLast},
		StatusID:     radarStatusID,
		TrackSignals: trackSignals,
		RadarDB:      radarDB,
		ControlDB:    controlDB,
		Static:       tss2Static,
		Startup: []keepalive.ControlSpec{
			{Message: "SPEED", Signals: map[string]float64{"ENCODER": 0, "SPEED": 0, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE", Signals: map[string]float64{"CRUISE_STATE": 8, "GAS_RELEASED": 1, "STANDSTILL_ON": 0, "ACCEL_NET": 0, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE_2", Signals: map[string]float64{"MAIN_ON": 1, "LOW_SPEED_LOCKOUT": 0, "SET_SPEED": 25, "CHECKSUM": 0}},
			{Message: "PCM_CRUISE_SM", Signals: map[string]float64{"MAIN_ON": 1, "CRUISE_CONTROL_STATE": 2, "UI_SET_SPEED": 25}},
		},
		Control: accNeutral,
	},
}
