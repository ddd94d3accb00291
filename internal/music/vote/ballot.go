package vote

// Ballot keeps one voter set per action. It is owned by a single session
// and is not safe for concurrent use on its own.
type Ballot struct {
	sets map[Action]map[string]struct{}
}

func NewBallot() *Ballot {
	b := &Ballot{sets: make(map[Action]map[string]struct{}, len(Actions))}
	b.Reset()
	return b
}

// Cast adds voter and returns the set size.
func (b *Ballot) Cast(action Action, voter string) int {
	set := b.set(action)
	set[voter] = struct{}{}
	return len(set)
}

func (b *Ballot) Has(action Action, voter string) bool {
	_, ok := b.set(action)[voter]
	return ok
}

func (b *Ballot) Count(action Action) int {
	return len(b.set(action))
}

func (b *Ballot) Clear(action Action) {
	clear(b.set(action))
}

// Reset empties every set.
func (b *Ballot) Reset() {
	for _, a := range Actions {
		if set, ok := b.sets[a]; ok {
			clear(set)
		} else {
			b.sets[a] = make(map[string]struct{})
		}
	}
}

func (b *Ballot) Empty() bool {
	for _, set := range b.sets {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// Counts returns the size of every set.
func (b *Ballot) Counts() map[Action]int {
	out := make(map[Action]int, len(b.sets))
	for a, set := range b.sets {
		out[a] = len(set)
	}
	return out
}

func (b *Ballot) set(action Action) map[string]struct{} {
	set, ok := b.sets[action]
	if !ok {
		set = make(map[string]struct{})
		b.sets[action] = set
	}
	return set
}
