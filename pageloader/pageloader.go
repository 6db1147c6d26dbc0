// Package pageloader shows a terminal progress view while a module initializes.
//
// The view starts when the bootstrap enters Initializing and exits after it
// reaches Running or Failed, before the entry point takes the terminal.
package pageloader

import (
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-boot/bootstrap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type stateMsg struct {
	err   error
	state bootstrap.State
}

type model struct {
	started     time.Time
	err         error
	onInterrupt func()
	location    string
	spinner     spinner.Model
	state       bootstrap.State
	interrupted bool
}

func newModel(location string, onInterrupt func()) model {
	return model{
		location:    location,
		onInterrupt: onInterrupt,
		state:       bootstrap.Initializing,
		started:     time.Now(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, tea.Quit
		}

	case stateMsg:
		m.state = msg.state
		m.err = msg.err
		if m.state.Terminal() {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	title := titleStyle.Render("boot")
	loc := locationStyle.Render(m.location)

	switch {
	case m.state == bootstrap.Running:
		return title + " " + readyStyle.Render("module ready") + " " + loc + "\n"
	case m.state == bootstrap.Failed:
		msg := "initialization failed"
		if m.err != nil {
			msg += ": " + m.err.Error()
		}
		return title + " " + errorStyle.Render(msg) + "\n"
	case m.interrupted:
		return title + " " + errorStyle.Render("interrupted") + " " + loc + "\n"
	default:
		elapsed := time.Since(m.started).Truncate(100 * time.Millisecond)
		return title + " " + m.spinner.View() + " loading " + loc + " " +
			helpStyle.Render(elapsed.String()+" · ctrl+c to abort") + "\n"
	}
}

// Option configures a Loader.
type Option func(*Loader)

// WithOutput sets where the view is drawn. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(l *Loader) {
		l.opts = append(l.opts, tea.WithOutput(w))
	}
}

// WithInput sets the keyboard source. nil disables input.
func WithInput(r io.Reader) Option {
	return func(l *Loader) {
		l.opts = append(l.opts, tea.WithInput(r))
	}
}

// WithoutRenderer prints only the final view, for non-interactive output.
func WithoutRenderer() Option {
	return func(l *Loader) {
		l.opts = append(l.opts, tea.WithoutRenderer())
	}
}

// WithInterrupt sets the callback run when the user presses ctrl+c while loading.
func WithInterrupt(fn func()) Option {
	return func(l *Loader) {
		l.onInterrupt = fn
	}
}

// Loader drives the progress view from bootstrap transitions.
type Loader struct {
	program     *tea.Program
	done        chan struct{}
	onInterrupt func()
	location    string
	opts        []tea.ProgramOption
}

// New creates a progress view for location.
func New(location string, opts ...Option) *Loader {
	l := &Loader{location: location}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Observer returns a bootstrap observer that runs the view. On a terminal state
// it returns only after the view has exited.
func (l *Loader) Observer() bootstrap.Observer {
	return func(_, to bootstrap.State, err error) {
		switch {
		case to == bootstrap.Initializing:
			l.start()
		case to.Terminal():
			l.finish(to, err)
		}
	}
}

func (l *Loader) start() {
	if l.program != nil {
		return
	}
	l.program = tea.NewProgram(newModel(l.location, l.onInterrupt), l.opts...)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		_, _ = l.program.Run()
	}()
}

func (l *Loader) finish(state bootstrap.State, err error) {
	if l.program == nil {
		return
	}
	l.program.Send(stateMsg{state: state, err: err})
	<-l.done
}
