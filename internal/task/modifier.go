package task

// Modifier narrows or reorders the task set before a run.
type Modifier interface {
	Modify(descs []Descriptor) []Descriptor
}

// ModifierFunc adapts a function to Modifier.
type ModifierFunc func([]Descriptor) []Descriptor

func (f ModifierFunc) Modify(descs []Descriptor) []Descriptor { return f(descs) }

// Identity keeps every task.
type Identity struct{}

func (Identity) Modify(descs []Descriptor) []Descriptor { return descs }

// IDFilter keeps only the listed task ids, in source order. An empty filter keeps everything.
type IDFilter []string

func (f IDFilter) Modify(descs []Descriptor) []Descriptor {
	if len(f) == 0 {
		return descs
	}
	want := make(map[string]bool, len(f))
	for _, id := range f {
		want[id] = true
	}

	var out []Descriptor
	for _, d := range descs {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// Limit keeps the first N tasks. Zero or negative keeps everything.
type Limit int

func (l Limit) Modify(descs []Descriptor) []Descriptor {
	if l <= 0 || int(l) >= len(descs) {
		return descs
	}
	return descs[:l]
}

// Chain applies modifiers left to right.
type Chain []Modifier

func (c Chain) Modify(descs []Descriptor) []Descriptor {
	for _, m := range c {
		if m != nil {
			descs = m.Modify(descs)
		}
	}
	return descs
}
