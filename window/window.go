// Package window is the controller-side handle on a web view that lives in the worker process.
package window

import "github.com/guseggert/webproc/engine"

// Writer sends one command to the worker. *channel.Server implements it.
type Writer interface {
	Write(op string, args ...any) error
}

// Window forwards each call to the worker as a single command.
// Calls return as soon as the command is sent or queued; nothing waits for the worker to carry it out.
type Window struct {
	w Writer
}

func New(w Writer) *Window {
	return &Window{w: w}
}

// Run starts the window's event loop in the worker.
func (win *Window) Run() error {
	return win.w.Write(engine.OpRun)
}

func (win *Window) SetTitle(title string) error {
	return win.w.Write(engine.OpSetTitle, title)
}

func (win *Window) SetSize(size engine.Size) error {
	return win.w.Write(engine.OpSetSize, size)
}

func (win *Window) Navigate(url string) error {
	return win.w.Write(engine.OpNavigate, url)
}

func (win *Window) SetHTML(html string) error {
	return win.w.Write(engine.OpSetHTML, html)
}

// Init injects JavaScript that runs before window.onload on every page load.
func (win *Window) Init(js string) error {
	return win.w.Write(engine.OpInit, js)
}

func (win *Window) Eval(js string) error {
	return win.w.Write(engine.OpEval, js)
}

// Terminate stops the event loop.
func (win *Window) Terminate() error {
	return win.w.Write(engine.OpTerminate)
}

func (win *Window) Destroy() error {
	return win.w.Write(engine.OpDestroy)
}
