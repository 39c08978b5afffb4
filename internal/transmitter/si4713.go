package transmitter

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"periph.io/x/conn/v3/gpio"

	"github.com/bartgrantham/dynrds/internal/charset"
	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
	"github.com/bartgrantham/dynrds/internal/rds"
)

const Si4713Addr = 0x63

// Si4713 commands, from AN332
const (
	siPowerUp     = 0x01
	siGetRev      = 0x10
	siPowerDown   = 0x11
	siSetProperty = 0x12
	siTuneFreq    = 0x30
	siTunePower   = 0x31
	siTuneStatus  = 0x33
	siRDSBuff     = 0x35
	siRDSPS       = 0x36
)

// Si4713 properties
const (
	siPropComponentEnable = 0x2100
	siPropPreemphasis     = 0x2106
	siPropRDSPI           = 0x2C01
	siPropRDSPSMix        = 0x2C02
	siPropRDSPSMisc       = 0x2C03
	siPropRDSPSRepeat     = 0x2C04
	siPropRDSPSCount      = 0x2C05
)

const (
	siStatusCTS  = 0x80
	siPartNumber = 13

	// SiPSMax is 12 PS messages of 8
	SiPSMax = 96
	// SiRTBlock is one RT message, the A/B flag flips between them
	SiRTBlock = 32

	siMixNormal = 5
	siMixBurst  = 2
	siBurstTime = 1 * time.Second

	SiCTSPolls     = 100
	SiCTSPollDelay = 1 * time.Millisecond
	SiGroupDelay   = 250 * time.Millisecond
)

/*
The Si4713 keeps its own PS rotation and RT circular buffer, so text goes to
the chip once per UpdateText and SendNextGroup only paces the loop. MIX 5 and
REPEAT 9 give PS about 4 s and RT about 5.5 s. Lowering MIX speeds up RT,
which is what the one second burst after a text update does.
*/
type Si4713 struct {
	Sleep      func(time.Duration)
	Now        func() time.Time
	ResetDelay time.Duration

	cfg      *config.Config
	open     i2cbus.Opener
	resetPin Pin
	link     *i2cbus.Link
	closer   func() error
	active   bool

	depth      int // circular buffer size, in groups
	burstUntil time.Time
	psText     string
	rtText     string

	ps     *rds.Buffer
	rt     *rds.Buffer
	recent history
}

func NewSi4713(cfg *config.Config, open i2cbus.Opener, resetPin Pin) *Si4713 {
	s := &Si4713{
		ResetDelay: DefaultResetDelay,
		cfg:        cfg,
		open:       open,
		resetPin:   resetPin,
	}
	s.ps = rds.NewPS(4, cfg.PSDelay())
	s.ps.Now = s.now
	s.rt = rds.NewRT(SiRTBlock, cfg.RTDelay())
	s.rt.Now = s.now
	return s
}

func (s *Si4713) Name() string                  { return config.TransmitterSi4713 }
func (s *Si4713) Active() bool                  { return s.active }
func (s *Si4713) Buffers() (ps, rt *rds.Buffer) { return s.ps, s.rt }
func (s *Si4713) Recent() [][]byte              { return s.recent.list() }

// Depth is the RDS circular buffer size the chip reported at startup.
func (s *Si4713) Depth() int { return s.depth }

func (s *Si4713) now() time.Time        { return clock(s.Now)() }
func (s *Si4713) sleep(d time.Duration) { sleeper(s.Sleep)(d) }

func (s *Si4713) connect() error {
	if s.link != nil {
		return nil
	}
	c, closer, err := s.open()
	if err != nil {
		return fmt.Errorf("%w: %w", i2cbus.ErrFatal, err)
	}
	s.link = i2cbus.NewLink(c, "si4713")
	s.link.Sleep = s.sleep
	s.closer = closer
	return nil
}

func (s *Si4713) disconnect() {
	if s.closer != nil {
		if err := s.closer(); err != nil {
			log.Warn().Err(err).Msg("closing si4713 bus")
		}
	}
	s.link, s.closer = nil, nil
}

func (s *Si4713) waitCTS() bool {
	for i := 0; i < SiCTSPolls; i++ {
		if b, err := s.link.ReadReg(0x00, false); err == nil && b&siStatusCTS != 0 {
			return true
		}
		s.sleep(SiCTSPollDelay)
	}
	return false
}

// command sends cmd and waits for the chip to be ready for the next one.
func (s *Si4713) command(cmd byte, args []byte, fatal bool) error {
	if err := s.link.Write(cmd, args, fatal); err != nil {
		return err
	}
	if !s.waitCTS() {
		log.Warn().Hex("cmd", []byte{cmd}).Msg("no clear to send")
		return fmt.Errorf("si4713 command 0x%02x: %w", cmd, ErrNoCTS)
	}
	return nil
}

func (s *Si4713) setProperty(prop, value uint16) error {
	return s.command(siSetProperty, []byte{
		0x00,
		byte(prop >> 8), byte(prop),
		byte(value >> 8), byte(value),
	}, false)
}

// setProperties sets each property in order, logging the ones that fail.
func (s *Si4713) setProperties(props [][2]uint16) {
	for _, p := range props {
		if err := s.setProperty(p[0], p[1]); err != nil {
			log.Warn().Err(err).Hex("property", []byte{byte(p[0] >> 8), byte(p[0])}).Msg("couldn't set property")
		}
	}
}

func (s *Si4713) pulseReset() error {
	log.Info().Msg("pulsing si4713 reset pin")
	for _, step := range []struct {
		l gpio.Level
		d time.Duration
	}{
		{gpio.High, 10 * time.Millisecond},
		{gpio.Low, 10 * time.Millisecond},
		{gpio.High, 110 * time.Millisecond},
	} {
		if err := s.resetPin.Out(step.l); err != nil {
			return err
		}
		s.sleep(step.d)
	}
	return nil
}

func (s *Si4713) Startup() error {
	log.Info().Msg("starting Si4713 transmitter")
	if s.resetPin != nil {
		if err := s.pulseReset(); err != nil {
			return fmt.Errorf("%w: reset pin: %w", i2cbus.ErrFatal, err)
		}
	}
	if err := s.connect(); err != nil {
		return err
	}

	// transmit mode, crystal oscillator, analog audio input
	if err := s.link.Write(siPowerUp, []byte{0b00010010, 0b01010000}, true); err != nil {
		return err
	}
	s.sleep(110 * time.Millisecond)
	if !s.waitCTS() {
		log.Error().Msg("si4713 failed to be read after power up")
		return fmt.Errorf("%w: si4713 power up: %w", i2cbus.ErrFatal, ErrNoCTS)
	}

	if err := s.command(siGetRev, nil, true); err != nil && !isNoCTS(err) {
		return err
	}
	rev, err := s.link.Read(0x00, 9, true)
	if err != nil {
		return err
	}
	log.Info().Int("part", int(rev[1])).Int("fw_major", int(rev[2])).Int("fw_minor", int(rev[3])).
		Int("chip_rev", int(rev[8])).Msg("si47xx")
	if rev[1] != siPartNumber {
		log.Error().Int("part", int(rev[1])).Msg("part number is not 13, is this a Si4713?")
		return fmt.Errorf("si4713: %w: part %d", ErrChipID, rev[1])
	}

	if err := s.command(siRDSBuff, []byte{0, 0, 0, 0, 0, 0, 0}, true); err != nil && !isNoCTS(err) {
		return err
	}
	buf, err := s.link.Read(0x00, 6, true)
	if err != nil {
		return err
	}
	s.depth = int(buf[2]) + int(buf[3])
	log.Info().Int("circular_used", int(buf[3])).Int("circular_size", s.depth).
		Int("fifo_used", int(buf[5])).Int("fifo_size", int(buf[4])+int(buf[5])).Msg("rds buffers")

	var preemphasis uint16
	if s.cfg.Preemphasis == "50us" {
		preemphasis = 1
	}
	s.setProperties([][2]uint16{
		{siPropComponentEnable, 0x0007}, // stereo, pilot and RDS
		{siPropPreemphasis, preemphasis},
		{siPropRDSPSMix, siMixNormal},
		{siPropRDSPSRepeat, 9},
		{siPropRDSPSMisc, 0b0001100000001000 | uint16(s.cfg.PTY)<<5},
	})

	freq := uint16(math.Round(s.cfg.Frequency * 100)) // 10 kHz units
	if err := s.command(siTuneFreq, []byte{0x00, byte(freq >> 8), byte(freq)}, false); err != nil {
		log.Warn().Err(err).Float64("frequency", s.cfg.Frequency).Msg("couldn't tune")
	}
	s.sleep(100 * time.Millisecond)

	if err := s.command(siTunePower, []byte{0x00, 0x00, byte(s.cfg.Si4713.ChipPower), byte(s.cfg.Si4713.TuningCap)}, false); err != nil {
		log.Warn().Err(err).Msg("couldn't set transmit power")
	}
	s.sleep(20 * time.Millisecond)

	s.setProperties([][2]uint16{{siPropRDSPI, s.cfg.PI()}})

	if err := s.Update(); err != nil {
		return err
	}
	s.active = true
	s.load()
	if err := s.push(); err != nil {
		log.Error().Err(err).Msg("couldn't load RDS text")
	}
	return nil
}

// Update has nothing to do, the Si4713 has no dynamic audio settings.
func (s *Si4713) Update() error {
	return nil
}

func (s *Si4713) Shutdown() error {
	log.Info().Msg("stopping Si4713 transmitter")
	if s.link != nil {
		if err := s.command(siPowerDown, nil, false); err != nil {
			log.Warn().Err(err).Msg("couldn't power down Si4713")
		}
	}
	s.active = false
	s.burstUntil = time.Time{}
	return nil
}

func (s *Si4713) Reset() error {
	log.Warn().Msg("resetting Si4713 transmitter")
	s.Shutdown()
	s.disconnect()
	s.sleep(s.ResetDelay)
	return s.Startup()
}

func (s *Si4713) Status() (map[string]int, error) {
	if s.link == nil {
		return nil, nil
	}
	if err := s.command(siTuneStatus, []byte{0x01}, false); err != nil {
		return nil, err
	}
	data, err := s.link.Read(0x00, 8, false)
	if err != nil {
		return nil, err
	}
	if data[0]&siStatusCTS == 0 {
		return nil, ErrNoCTS
	}
	st := map[string]int{
		"frequency":   int(data[2])<<8 | int(data[3]),
		"power":       int(data[5]),
		"antenna_cap": int(data[6]),
		"noise":       int(data[7]),
	}
	log.Info().Float64("mhz", float64(st["frequency"])/100).Int("power", st["power"]).
		Int("antenna_cap", st["antenna_cap"]).Int("noise", st["noise"]).Msg("status")
	return st, nil
}

// RTMax is the longest RadioText the circular buffer holds: three buffer
// entries per 4 character group, whole 32 character messages only.
func (s *Si4713) RTMax() int {
	return s.depth / 3 * 4 / SiRTBlock * SiRTBlock
}

func (s *Si4713) UpdateText(ps, rt string) error {
	log.Debug().Msg("si4713 update text")
	s.psText, s.rtText = ps, rt
	s.load()

	if !s.active {
		return nil
	}
	if err := s.push(); err != nil {
		log.Error().Err(err).Msg("si4713 stopped answering, resetting")
		return s.Reset()
	}

	// initial burst of RT groups so it shows quickly
	log.Debug().Msg("RT group burst")
	s.setProperties([][2]uint16{{siPropRDSPSMix, siMixBurst}})
	s.burstUntil = s.now().Add(siBurstTime)
	return nil
}

// load fills the buffers, truncated to what the chip can hold.
func (s *Si4713) load() {
	s.ps.Delay = s.cfg.PSDelay()
	s.rt.Delay = s.cfg.RTDelay()

	psb := charset.Bytes(s.psText)
	if len(psb) > SiPSMax {
		log.Warn().Int("length", len(psb)).Int("max", SiPSMax).Msg("PS text too long, truncating")
		psb = psb[:SiPSMax]
	}
	rtb := charset.Bytes(s.rtText)
	if s.depth > 0 && len(rtb) > s.RTMax() {
		log.Warn().Int("length", len(rtb)).Int("max", s.RTMax()).Msg("RT text too long, truncating")
		rtb = rtb[:s.RTMax()]
	}
	s.ps.SetData(string(psb))
	s.rt.SetData(string(rtb))
}

func (s *Si4713) push() error {
	if err := s.pushPS(); err != nil {
		return err
	}
	return s.pushRT()
}

// pushPS loads the PS messages, 4 character slots in ascending order.
func (s *Si4713) pushPS() error {
	text := []byte(strings.Join(s.ps.Fragments(), ""))
	log.Info().Str("ps", string(text)).Msg("PS")
	pi := s.cfg.PI()

	for block := 0; block < len(text)/4; block++ {
		c := text[block*4 : block*4+4]
		if err := s.command(siRDSPS, []byte{byte(block), c[0], c[1], c[2], c[3]}, false); err != nil {
			return err
		}
		seg := block % 2 * 2
		s.recent.add(psGroup(pi, s.cfg.PTY, seg, c[0], c[1]))
		s.recent.add(psGroup(pi, s.cfg.PTY, seg+1, c[2], c[3]))
	}
	return s.setProperty(siPropRDSPSCount, uint16(len(text)/8))
}

// pushRT refills the circular buffer with 2A segments. Every 32 characters
// is a new message: the A/B flag flips and the segment address restarts.
func (s *Si4713) pushRT() error {
	if s.RTMax() == 0 {
		log.Warn().Int("depth", s.depth).Msg("no room for RT in the circular buffer")
		return nil
	}
	text := []byte(strings.Join(s.rt.Fragments(), ""))
	// pad so the last message takes as long to send as the others
	for len(text)%SiRTBlock != 0 {
		text = append(text, ' ')
	}
	log.Info().Str("rt", strings.ReplaceAll(string(text), "\r", "<0d>")).Msg("RT")

	// empty the circular buffer
	if err := s.command(siRDSBuff, []byte{0b00000010, 0, 0, 0, 0, 0, 0}, false); err != nil {
		return err
	}

	pi := s.cfg.PI()
	ab := true
	offset := 0
	var occupancy []byte
	for i := 0; i < len(text); i += 4 {
		if i%SiRTBlock == 0 {
			ab = !ab
			offset = 0
		}
		var abBit byte
		if ab {
			abBit = 1
		}
		args := []byte{0b00000100, 0b00100000, abBit<<4 | byte(offset)}
		args = append(args, text[i:i+4]...)
		if err := s.command(siRDSBuff, args, false); err != nil {
			return err
		}
		if b, err := s.link.Read(0x00, 6, false); err == nil {
			occupancy = b
		}
		s.recent.add(rtGroup(pi, s.cfg.PTY, ab, offset, text[i:i+4]))
		offset++
	}
	if len(occupancy) == 6 {
		log.Info().Int("used", int(occupancy[3])).Int("size", int(occupancy[2])+int(occupancy[3])).Msg("circular buffer")
	}
	return nil
}

// SendNextGroup ends a pending RT burst and paces the loop.
func (s *Si4713) SendNextGroup() error {
	log.Trace().Msg("si4713 send next group")
	if !s.burstUntil.IsZero() && !s.now().Before(s.burstUntil) {
		log.Debug().Msg("RT group burst done")
		s.burstUntil = time.Time{}
		if err := s.setProperty(siPropRDSPSMix, siMixNormal); err != nil && isNoCTS(err) {
			log.Error().Msg("si4713 stopped answering, resetting")
			return s.Reset()
		}
	}
	s.sleep(SiGroupDelay)
	return nil
}

func isNoCTS(err error) bool {
	return errors.Is(err, ErrNoCTS)
}
