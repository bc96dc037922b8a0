package tracks

import (
	"errors"
	"fmt"
	"sync"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"golang.org/x/exp/rand"
)

var ErrTrackNotFound = errors.New("track not found")

// List is the selectable list of tracks with a cursor that stops at both
// ends.
type List struct {
	log vgmplay.Logger
	src Source

	lock  sync.Mutex
	items []string
	pos   int

	shuffled    bool
	shuffleSeed uint64
}

func NewList(log vgmplay.Logger, src Source) *List {
	return &List{log: log, src: src, pos: -1}
}

// Reload lists the source again, keeping the current selection if the track
// is still there.
func (l *List) Reload() error {
	files, err := l.src.Files()
	if err != nil {
		return err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	var current string
	if l.pos >= 0 {
		current = l.items[l.pos]
	}

	l.items = files
	l.pos = -1
	if len(l.items) > 0 {
		l.pos = 0
	}

	if l.shuffled {
		l.shuffle(rand.New(rand.NewSource(l.shuffleSeed)))
	}

	if idx := l.indexOf(current); idx >= 0 {
		l.pos = idx
	}

	l.log.Debugf("loaded %d tracks", len(l.items))
	return nil
}

func (l *List) indexOf(name string) int {
	if name == "" {
		return -1
	}

	for i, item := range l.items {
		if item == name {
			return i
		}
	}

	return -1
}

func (l *List) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.items)
}

// Items returns the tracks in play order.
func (l *List) Items() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.items...)
}

// Index returns the position of the selection, -1 if the list is empty.
func (l *List) Index() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.pos
}

func (l *List) Current() (string, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.pos < 0 {
		return "", false
	}

	return l.items[l.pos], true
}

// Next moves the selection down, it reports false at the end of the list.
func (l *List) Next() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.pos < 0 || l.pos+1 >= len(l.items) {
		return false
	}

	l.pos++
	return true
}

// Prev moves the selection up, it reports false at the start of the list.
func (l *List) Prev() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.pos <= 0 {
		return false
	}

	l.pos--
	return true
}

func (l *List) Select(name string) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	idx := l.indexOf(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, name)
	}

	l.pos = idx
	return nil
}

// SetShuffle reorders the list randomly, or back to its original order,
// keeping the current selection.
func (l *List) SetShuffle(shuffle bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if shuffle == l.shuffled {
		return
	}

	if shuffle {
		l.shuffleSeed = rand.Uint64() + 1
		l.shuffle(rand.New(rand.NewSource(l.shuffleSeed)))
	} else {
		l.unshuffle(rand.New(rand.NewSource(l.shuffleSeed)))
		l.shuffleSeed = 0
	}

	l.shuffled = shuffle
}

func (l *List) Shuffled() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.shuffled
}

func (l *List) shuffle(rnd *rand.Rand) {
	if len(l.items) <= 1 {
		return
	}

	idx := l.pos
	for i := len(l.items) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		l.items[i], l.items[j] = l.items[j], l.items[i]
		if i == idx {
			idx = j
		} else if j == idx {
			idx = i
		}
	}
	l.pos = idx
}

func (l *List) unshuffle(rnd *rand.Rand) {
	if len(l.items) <= 1 {
		return
	}

	exchanges := make([]int, len(l.items)-1)
	for i := 0; i < len(l.items)-1; i++ {
		exchanges[i] = rnd.Intn(len(l.items) - i)
	}

	idx := l.pos
	for i := 1; i < len(l.items); i++ {
		j := exchanges[len(l.items)-i-1]
		l.items[i], l.items[j] = l.items[j], l.items[i]
		if i == idx {
			idx = j
		} else if j == idx {
			idx = i
		}
	}
	l.pos = idx
}
