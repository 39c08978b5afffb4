package transmitter

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
	"github.com/bartgrantham/dynrds/internal/pwm"
	"github.com/bartgrantham/dynrds/internal/rds"
)

const QN8066Addr = 0x21

// QN8066 registers we touch. Values written to the undocumented ones are the
// ones that sound right on the common transmitter boards.
const (
	qnSystem1    = 0x00 // reset, standby/tx state machine
	qnSystem2    = 0x01 // bit 6 RDS enable, bit 1 RDS send toggle, bit 0 pre-emphasis
	qnCCA        = 0x02 // crystal source
	qnCID2       = 0x06 // chip id in bits 7:2
	qnXtalDiv    = 0x07 // two bytes, crystal divider
	qnStatus3    = 0x0a // state machine in bits 7:4
	qnIntCtrl    = 0x19 // TXCH[9:8] in bits 1:0
	qnStatus1    = 0x1a // bit 2 RDS sent toggle, audio peak in bits 6:3
	qnTxChannel  = 0x1b // TXCH[7:0]
	qnRDSData    = 0x1c // 8 bytes, blocks A..D
	qnPAC        = 0x24 // bit 7 clears the audio peak
	qnTxDev      = 0x27
	qnTxGain     = 0x28 // soft clip, buffer gain, digital gain, input impedance
	qnAGC        = 0x6e
	qnChipID     = 0b1101
	qnRDSSentBit = 2
)

// Group timing. A group is 104 bits at 1187.5 bps, 87.6 ms.
const (
	QNGroupTime = 87 * time.Millisecond
	QNPollDelay = 10 * time.Millisecond
	QNMaxPolls  = 50
)

type QN8066 struct {
	Sleep      func(time.Duration)
	Now        func() time.Time
	ResetDelay time.Duration

	cfg    *config.Config
	open   i2cbus.Opener
	amp    pwm.Amplifier
	link   *i2cbus.Link
	closer func() error
	active bool

	ps     *rds.Buffer
	rt     *rds.Buffer
	recent history
}

// NewQN8066 doesn't touch the bus, Startup does.
func NewQN8066(cfg *config.Config, open i2cbus.Opener, amp pwm.Amplifier) *QN8066 {
	if amp == nil {
		amp = pwm.None{}
	}
	q := &QN8066{
		ResetDelay: DefaultResetDelay,
		cfg:        cfg,
		open:       open,
		amp:        amp,
	}
	q.ps = rds.NewPS(2, cfg.PSDelay())
	q.ps.Now = q.now
	q.rt = rds.NewRT(cfg.RT.Size, cfg.RTDelay())
	q.rt.Now = q.now
	return q
}

func (q *QN8066) Name() string                  { return config.TransmitterQN8066 }
func (q *QN8066) Active() bool                  { return q.active }
func (q *QN8066) Buffers() (ps, rt *rds.Buffer) { return q.ps, q.rt }
func (q *QN8066) Recent() [][]byte              { return q.recent.list() }

func (q *QN8066) now() time.Time        { return clock(q.Now)() }
func (q *QN8066) sleep(d time.Duration) { sleeper(q.Sleep)(d) }

func (q *QN8066) connect() error {
	if q.link != nil {
		return nil
	}
	c, closer, err := q.open()
	if err != nil {
		return fmt.Errorf("%w: %w", i2cbus.ErrFatal, err)
	}
	q.link = i2cbus.NewLink(c, "qn8066")
	q.link.Sleep = q.sleep
	q.closer = closer
	return nil
}

func (q *QN8066) disconnect() {
	if q.closer != nil {
		if err := q.closer(); err != nil {
			log.Warn().Err(err).Msg("closing qn8066 bus")
		}
	}
	q.link, q.closer = nil, nil
}

// FrequencyWord is the TXCH value for f MHz, 50 kHz steps from 60 MHz.
func FrequencyWord(f float64) uint16 {
	return uint16(math.Round((f - 60) / 0.05))
}

func (q *QN8066) Startup() error {
	log.Info().Msg("starting QN8066 transmitter")
	if err := q.connect(); err != nil {
		return err
	}

	id, err := q.link.ReadReg(qnCID2, true)
	if err != nil {
		return err
	}
	if id>>2 != qnChipID {
		log.Error().Int("chip_id", int(id>>2)).Msg("chip id is not 13, is this a QN8066?")
		return fmt.Errorf("qn8066: %w: %d", ErrChipID, id>>2)
	}

	// reset everything
	if err := q.link.Write(qnSystem1, []byte{0b11100011}, true); err != nil {
		return err
	}
	q.sleep(200 * time.Millisecond)

	// clock source and divider
	if err := q.link.Write(qnCCA, []byte{0b00010000}, true); err != nil {
		return err
	}
	if err := q.link.Write(qnXtalDiv, []byte{0b11101000, 0b00001011}, true); err != nil {
		return err
	}

	freq := FrequencyWord(q.cfg.Frequency)
	if err := q.link.Write(qnIntCtrl, []byte{0b00100000 | byte(freq>>8)}, true); err != nil {
		return err
	}
	if err := q.link.Write(qnTxChannel, []byte{byte(freq)}, true); err != nil {
		return err
	}

	var sys2 byte
	if q.cfg.Preemphasis != "50us" {
		sys2 |= 0b1
	}
	if q.cfg.EnableRDS {
		sys2 |= 1 << 6
	}
	if err := q.link.Write(qnSystem2, []byte{sys2}, false); err != nil {
		log.Warn().Err(err).Msg("couldn't set pre-emphasis and RDS enable")
	}

	// exit standby, enter TX
	if err := q.link.Write(qnSystem1, []byte{0b00001011}, true); err != nil {
		return err
	}
	q.sleep(200 * time.Millisecond)
	q.clearAudioPeak()

	if err := q.Update(); err != nil {
		return err
	}
	q.active = true

	if q.cfg.QN8066.PWM {
		if err := q.amp.Start(pwm.DutyFor(q.cfg.QN8066.AmpPower)); err != nil {
			log.Error().Err(err).Msg("couldn't start amplifier PWM")
		}
	}
	return nil
}

func (q *QN8066) Update() error {
	if q.link == nil {
		return nil
	}
	c := q.cfg.QN8066
	if err := q.link.Write(qnTxDev, []byte{0b00111010}, true); err != nil {
		return err
	}
	// AGC makes obvious, poor sounding level changes
	if !c.AGC {
		if err := q.link.Write(qnAGC, []byte{0b10110111}, true); err != nil {
			return err
		}
	}
	var gain byte
	if c.SoftClipping {
		gain |= 1 << 7
	}
	gain |= byte(c.BufferGain&0b111)<<4 | byte(c.DigitalGain&0b11)<<2 | byte(c.InputImpedance&0b11)
	if err := q.link.Write(qnTxGain, []byte{gain}, true); err != nil {
		return err
	}

	if q.amp.Active() {
		if err := q.amp.Update(pwm.DutyFor(c.AmpPower)); err != nil {
			log.Error().Err(err).Msg("couldn't update amplifier PWM")
		}
	}
	return nil
}

func (q *QN8066) Shutdown() error {
	log.Info().Msg("stopping QN8066 transmitter")
	if q.link != nil {
		// exit TX, enter standby
		if err := q.link.Write(qnSystem1, []byte{0b00100011}, false); err != nil {
			log.Warn().Err(err).Msg("couldn't put QN8066 in standby")
		}
	}
	q.active = false
	if q.amp.Active() {
		if err := q.amp.Stop(); err != nil {
			log.Error().Err(err).Msg("couldn't stop amplifier PWM")
		}
	}
	return nil
}

func (q *QN8066) Reset() error {
	log.Warn().Msg("resetting QN8066 transmitter")
	q.Shutdown()
	q.disconnect()
	q.sleep(q.ResetDelay)
	return q.Startup()
}

func (q *QN8066) clearAudioPeak() {
	for _, b := range []byte{0b11111111, 0b01111111} {
		if err := q.link.Write(qnPAC, []byte{b}, false); err != nil {
			log.Warn().Err(err).Msg("couldn't clear audio peak")
			return
		}
	}
}

func (q *QN8066) Status() (map[string]int, error) {
	if q.link == nil {
		return nil, nil
	}
	pk, err := q.link.ReadReg(qnStatus1, false)
	if err != nil {
		return nil, err
	}
	fsm, err := q.link.ReadReg(qnStatus3, false)
	if err != nil {
		return nil, err
	}
	st := map[string]int{
		"audio_peak": int(pk >> 3 & 0b1111),
		"state":      int(fsm >> 4),
	}
	log.Info().Int("state", st["state"]).Int("audio_peak", st["audio_peak"]).
		Msg("status, expect state 10 and audio peak <= 14")
	q.clearAudioPeak()
	return st, nil
}

func (q *QN8066) UpdateText(ps, rt string) error {
	q.ps.Delay = q.cfg.PSDelay()
	if q.rt.FragmentSize != q.cfg.RT.Size {
		q.rt = rds.NewRT(q.cfg.RT.Size, q.cfg.RTDelay())
		q.rt.Now = q.now
	}
	q.rt.Delay = q.cfg.RTDelay()

	q.ps.SetData(ps)
	q.rt.SetData(rt)
	log.Info().Str("ps", q.ps.String()).Msg("updated")
	log.Info().Str("rt", q.rt.String()).Msg("updated")
	return nil
}

// SendNextGroup sends one 0B group then one 2A group, about 175 ms.
func (q *QN8066) SendNextGroup() error {
	log.Trace().Msg("qn8066 send next group")
	pi := q.cfg.PI()

	q.ps.AdvanceIfDue()
	idx, chars := q.ps.NextGroup()
	if err := q.transmit(psGroup(pi, q.cfg.PTY, idx, chars[0], chars[1])); err != nil {
		return err
	}
	if !q.active {
		return nil
	}

	q.rt.AdvanceIfDue()
	idx, chars = q.rt.NextGroup()
	return q.transmit(rtGroup(pi, q.cfg.PTY, q.rt.AB(), idx, chars))
}

// transmit hands one group to the chip and waits for it to go out. A chip
// that never flips its sent bit gets reset.
func (q *QN8066) transmit(group []byte) error {
	if q.link == nil {
		return nil
	}
	q.recent.add(group)

	sys2, err := q.link.ReadReg(qnSystem2, false)
	if err != nil {
		return q.stalled(err)
	}
	st, err := q.link.ReadReg(qnStatus1, false)
	if err != nil {
		return q.stalled(err)
	}
	sent := st >> qnRDSSentBit & 1
	log.Trace().Hex("group", group).Int("send_bit", int(sys2>>1&1)).Int("sent_bit", int(sent)).Msg("transmit")

	if err := q.link.Write(qnRDSData, group, false); err != nil {
		return q.stalled(err)
	}
	if err := q.link.Write(qnSystem2, []byte{sys2 ^ 0b10}, false); err != nil {
		return q.stalled(err)
	}

	q.sleep(QNGroupTime)
	for i := 0; ; i++ {
		st, err := q.link.ReadReg(qnStatus1, false)
		if err != nil {
			return q.stalled(err)
		}
		if st>>qnRDSSentBit&1 != sent {
			return nil
		}
		if i >= QNMaxPolls {
			return q.stalled(fmt.Errorf("rds sent bit never flipped"))
		}
		log.Trace().Msg("waiting for rds sent bit to flip")
		q.sleep(QNPollDelay)
	}
}

func (q *QN8066) stalled(err error) error {
	log.Error().Err(err).Msg("qn8066 rds stalled")
	return q.Reset()
}
