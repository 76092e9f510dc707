package sim

import (
	"math"
	"sync/atomic"
)

// Input is the directional key state sampled once per frame.
type Input struct {
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Direction returns a unit vector for the pressed keys, or zero.
// Opposite keys cancel out.
func (in Input) Direction() (dx, dy float64) {
	if in.Left {
		dx--
	}
	if in.Right {
		dx++
	}
	if in.Up {
		dy--
	}
	if in.Down {
		dy++
	}
	if dx != 0 && dy != 0 {
		dx /= math.Sqrt2
		dy /= math.Sqrt2
	}
	return dx, dy
}

// Key identifies one directional signal.
type Key uint32

const (
	KeyUp Key = 1 << iota
	KeyDown
	KeyLeft
	KeyRight
)

// KeyState holds pressed keys. Input sources write it from any goroutine;
// the frame loop reads it once per frame.
type KeyState struct {
	bits atomic.Uint32
}

// Set marks a key pressed or released.
func (k *KeyState) Set(key Key, pressed bool) {
	for {
		old := k.bits.Load()
		next := old &^ uint32(key)
		if pressed {
			next |= uint32(key)
		}
		if k.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Replace overwrites every key at once.
func (k *KeyState) Replace(in Input) {
	var b uint32
	if in.Up {
		b |= uint32(KeyUp)
	}
	if in.Down {
		b |= uint32(KeyDown)
	}
	if in.Left {
		b |= uint32(KeyLeft)
	}
	if in.Right {
		b |= uint32(KeyRight)
	}
	k.bits.Store(b)
}

// Input samples the current key state.
func (k *KeyState) Input() Input {
	b := k.bits.Load()
	return Input{
		Up:    b&uint32(KeyUp) != 0,
		Down:  b&uint32(KeyDown) != 0,
		Left:  b&uint32(KeyLeft) != 0,
		Right: b&uint32(KeyRight) != 0,
	}
}
