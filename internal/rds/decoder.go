package rds

/*

Receiver side of what we put on air, used by the monitor and the tests to
check the wire groups.

* block A: 16 bit PI Code; NA: encoded call sign, EU: country/coverage/program reference
* block B:
    * Group Type      : xxxx_...._...._....
    * Version         : ...._x..._...._....
    * Traffic Program : ...._.x.._...._....
    * Program Type    : ...._..xx_xxx._....
    * GT-dependent    : ...._...._...x_xxxx
* block C: GT-dependent (Version B groups repeat PI here)
* block D: GT-dependent

We only ever send 0B (PS, 2 chars in block D) and 2A (RT, 4 chars in C+D).

*/

import (
	"encoding/binary"
	"strings"
)

type Decoder struct {
	ProgramInformation uint16  // PI
	CallSign           [4]byte // derived from PI, RBDS only
	ProgramType        int     // PTY
	TrafficProgram     bool
	ProgramService     string
	Radiotext          string
	AB                 bool
	Groups             int

	// call sign triple buffering
	cs1 [4]byte
	cs2 [4]byte

	// program service triple buffering
	ps1 [8]byte
	ps2 [8]byte

	// radiotext triple buffering
	rt1 [64]byte
	rt2 [64]byte
}

// DecodeQN8066 feeds one QN8066 group payload (blocks A..D, big-endian) to
// the decoder.
func (r *Decoder) DecodeQN8066(payload []byte) {
	if len(payload) < 8 {
		return
	}
	r.Update(
		binary.BigEndian.Uint16(payload[0:2]),
		binary.BigEndian.Uint16(payload[2:4]),
		binary.BigEndian.Uint16(payload[4:6]),
		binary.BigEndian.Uint16(payload[6:8]),
	)
}

// GroupType returns the group type (0..15) and version ('A' or 'B') of block B.
func GroupType(rdsb uint16) (int, byte) {
	if rdsb&0x0800 != 0 {
		return int(rdsb >> 12), 'B'
	}
	return int(rdsb >> 12), 'A'
}

func (r *Decoder) Update(rdsa, rdsb, rdsc, rdsd uint16) {
	r.Groups++
	r.updatePI(rdsa)

	r.TrafficProgram = rdsb&0x0400 != 0
	r.ProgramType = int((rdsb >> 5) & 0x1f)

	switch gt, version := GroupType(rdsb); gt {
	case 0:
		r.updatePS(rdsb, rdsd)
	case 2:
		if version == 'A' {
			r.updateRT(rdsb, rdsc, rdsd)
		}
	}
}

func (r *Decoder) updatePI(rdsa uint16) {
	var tmp uint16

	// See: U.S. RBDS Standard - April 1998, pg 80-90
	r.ProgramInformation = rdsa
	r.cs1 = [4]byte{}
	switch {
	case rdsa&0x0F00 == 0x0000:
		// _0__ : European local (unique) broadcast
		r.cs1[0] = 'A'
		r.cs1[1] = 65 + byte((rdsa>>12)&0xf)
		r.cs1[2] = 65 + byte((rdsa>>4)&0xf)
		r.cs1[3] = 65 + byte(rdsa&0xf)
	case rdsa&0x00FF == 0x0000:
		// __00 : European test modes
		r.cs1[0] = 'A'
		r.cs1[1] = 'F'
		r.cs1[2] = 65 + byte((rdsa>>12)&0xf)
		r.cs1[3] = 65 + byte((rdsa>>8)&0xf)
	case rdsa >= 4096 && rdsa <= 39247:
		// North American 4-letter "W" and "K" stations
		if rdsa < 21672 {
			r.cs1[0] = 'K'
			tmp = rdsa - 4096
		} else {
			r.cs1[0] = 'W'
			tmp = rdsa - 21672
		}
		r.cs1[1] = 65 + byte(tmp/676)
		tmp %= 676
		r.cs1[2] = 65 + byte(tmp/26)
		tmp %= 26
		r.cs1[3] = 65 + byte(tmp)
	}

	// only update if we've seen the same thing twice
	if r.cs1 == r.cs2 {
		r.CallSign = r.cs2
	}
	r.cs2 = r.cs1
}

func (r *Decoder) updatePS(rdsb, rdsd uint16) {
	idx := int(rdsb&0x3) * 2
	r.ps1[idx] = byte((rdsd >> 8) & 0x7f)
	r.ps1[idx+1] = byte(rdsd & 0x7f)

	// commit at the end of a full pass if it matches the previous pass
	if idx == 6 {
		if r.ps1 == r.ps2 {
			r.ProgramService = string(r.ps2[:])
		}
		r.ps2 = r.ps1
	}
}

func (r *Decoder) updateRT(rdsb, rdsc, rdsd uint16) {
	idx := int(rdsb&0xf) * 4

	if idx == 0 {
		// a pass is complete, commit if it matches the previous pass
		if r.rt1 == r.rt2 {
			i := 0
			for i < len(r.rt2) && r.rt2[i] != EndOfText {
				i++
			}
			r.Radiotext = strings.TrimRight(string(r.rt2[:i]), " \x00")
		}
		r.rt2 = r.rt1
	}

	if ab := rdsb&0x0010 != 0; ab != r.AB {
		// A/B flipped: the receiver clears its display
		r.AB = ab
		for i := range r.rt1 {
			r.rt1[i] = ' '
		}
	}

	msg := [4]byte{
		byte((rdsc >> 8) & 0x7f),
		byte(rdsc & 0x7f),
		byte((rdsd >> 8) & 0x7f),
		byte(rdsd & 0x7f),
	}

	cridx := -1
	for i := 0; i < 4; i++ {
		r.rt1[idx+i] = msg[i]
		if msg[i] == EndOfText && cridx == -1 {
			cridx = idx + i
		}
	}

	// received a CR, everything after it is blank
	if cridx != -1 {
		for i := cridx + 1; i < len(r.rt1); i++ {
			r.rt1[i] = ' '
		}
	}
}
