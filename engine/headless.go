package engine

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrNotRunning = errors.New("engine is not running")

// Headless is an Adapter with no native window behind it.
// It keeps the state a real window would show and logs every operation,
// which makes the controller/worker pair usable on machines without a display.
type Headless struct {
	*Registry

	log  *zap.SugaredLogger
	args ConstructionArgs

	mut         sync.Mutex
	running     bool
	title       string
	size        Size
	url         string
	html        string
	initScripts []string
	evals       []string

	doneOnce sync.Once
	done     chan struct{}
}

// NewHeadless is a Factory.
func NewHeadless(log *zap.SugaredLogger, args ConstructionArgs) (Adapter, error) {
	return newHeadless(log, args), nil
}

func newHeadless(log *zap.SugaredLogger, args ConstructionArgs) *Headless {
	h := &Headless{
		Registry: NewRegistry(),
		log:      log.Named("headless"),
		args:     args,
		size:     args.Size,
		done:     make(chan struct{}),
	}
	h.MustRegister(OpRun, Bind0(h.run))
	h.MustRegister(OpSetTitle, Bind1(h.setTitle))
	h.MustRegister(OpSetSize, Bind1(h.setSize))
	h.MustRegister(OpNavigate, Bind1(h.navigate))
	h.MustRegister(OpSetHTML, Bind1(h.setHTML))
	h.MustRegister(OpInit, Bind1(h.addInitScript))
	h.MustRegister(OpEval, Bind1(h.eval))
	h.MustRegister(OpTerminate, Bind0(h.terminate))
	h.MustRegister(OpDestroy, Bind0(h.terminate))

	h.log.Debugw("created headless engine", "Debug", args.Debug, "Size", args.Size, "Wrapped", args.Wrap != nil)
	return h
}

func (h *Headless) Done() <-chan struct{} { return h.done }

func (h *Headless) run() error {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.running = true
	h.log.Infow("running", "Title", h.title, "URL", h.url)
	return nil
}

func (h *Headless) setTitle(title string) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.title = title
	h.log.Debugw("set title", "Title", title)
	return nil
}

func (h *Headless) setSize(s Size) error {
	if err := s.Validate(); err != nil {
		return err
	}
	h.mut.Lock()
	defer h.mut.Unlock()
	h.size = s
	h.log.Debugw("set size", "Width", s.Width, "Height", s.Height, "Hint", s.Hint.String())
	return nil
}

func (h *Headless) navigate(url string) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.url = url
	h.html = ""
	h.log.Debugw("navigate", "URL", url)
	return nil
}

func (h *Headless) setHTML(html string) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.html = html
	h.url = ""
	h.log.Debugw("set HTML", "Bytes", len(html))
	return nil
}

func (h *Headless) addInitScript(js string) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.initScripts = append(h.initScripts, js)
	return nil
}

func (h *Headless) eval(js string) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	if !h.running {
		return ErrNotRunning
	}
	h.evals = append(h.evals, js)
	return nil
}

func (h *Headless) terminate() error {
	h.mut.Lock()
	h.running = false
	h.mut.Unlock()
	h.doneOnce.Do(func() {
		h.log.Info("terminated")
		close(h.done)
	})
	return nil
}

// State is a snapshot of what the window would be showing.
type State struct {
	Running     bool
	Title       string
	Size        Size
	URL         string
	HTML        string
	InitScripts []string
	Evals       []string
}

func (h *Headless) State() State {
	h.mut.Lock()
	defer h.mut.Unlock()
	return State{
		Running:     h.running,
		Title:       h.title,
		Size:        h.size,
		URL:         h.url,
		HTML:        h.html,
		InitScripts: append([]string(nil), h.initScripts...),
		Evals:       append([]string(nil), h.evals...),
	}
}

func (h *Headless) Args() ConstructionArgs { return h.args }
