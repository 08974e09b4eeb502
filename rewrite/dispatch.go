package rewrite

// Loadable is an element whose image data loads asynchronously.
type Loadable interface {
	Element
	// Loaded reports whether the image has finished loading.
	Loaded() bool
	// OnLoad registers fn to run once, when loading completes.
	OnLoad(fn func())
}

// Dispatch runs Process now if el is loaded, otherwise once it loads.
// Before load the src may still be empty or a placeholder.
func (r *Rewriter) Dispatch(el Loadable) {
	if el.Loaded() {
		r.Process(el)
		return
	}
	el.OnLoad(func() { r.Process(el) })
}

// MapElement is a detached, always-loaded element backed by a map. The
// "src" key holds the source address.
type MapElement map[string]string

func (m MapElement) Attr(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func (m MapElement) SetAttr(name, value string) error {
	m[name] = value
	return nil
}

func (m MapElement) Src() string { return m["src"] }

func (m MapElement) SetSrc(addr string) error {
	m["src"] = addr
	return nil
}

func (m MapElement) Loaded() bool { return true }

func (m MapElement) OnLoad(fn func()) {}
