// Package ui is the terminal front end: a Bubble Tea program that renders
// the session state and turns palette commands into session actions.
package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/gateway"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/numparse"
	"github.com/mmynk/tabsplit/internal/session"
)

const extractTimeout = 2 * time.Minute

// Syncer loads shared sessions and retries failed saves.
type Syncer interface {
	Load(ctx context.Context, id string) error
	Retry(ctx context.Context) error
}

// Options wires a Model.
type Options struct {
	Store *session.Store

	// Sync and Extractor are nil when no server is configured; sharing and
	// scanning are then unavailable.
	Sync      Syncer
	Extractor extraction.Extractor

	TipPercent decimal.Decimal

	// BaseURL is the server root used to build share links.
	BaseURL string

	// Join is a share link or session id to open at start-up.
	Join string

	Money    *Money
	ReadFile func(string) ([]byte, error)
	NewID    func() string
}

// ─── async messages ──────────────────────────────────────────────────────────

type stateMsg struct{ state session.State }

type extractedMsg struct {
	lines []extraction.Line
	err   error
}

type loadedMsg struct {
	id  string
	err error
}

type retriedMsg struct{ err error }

// ─── key bindings ────────────────────────────────────────────────────────────

type keyMap struct {
	Palette key.Binding
	Help    key.Binding
	Dismiss key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "command")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Dismiss: key.NewBinding(key.WithKeys("esc", "enter"), key.WithHelp("esc", "dismiss")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Palette, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Palette, k.Dismiss}, {k.Help, k.Quit}}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model.
type Model struct {
	store       *session.Store
	sync        Syncer
	extractor   extraction.Extractor
	updates     chan session.State
	unsubscribe func()

	tip      decimal.Decimal
	baseURL  string
	join     string
	money    Money
	readFile func(string) ([]byte, error)
	newID    func() string

	state     session.State
	keys      keyMap
	help      help.Model
	showHelp  bool
	palette   palette
	spinner   spinner.Model
	status    string
	statusErr bool
	width     int
	height    int
}

// New returns a model observing opts.Store. Close releases the store
// subscription.
func New(opts Options) *Model {
	m := &Model{
		store:     opts.Store,
		sync:      opts.Sync,
		extractor: opts.Extractor,
		updates:   make(chan session.State, 1),
		tip:       opts.TipPercent,
		baseURL:   opts.BaseURL,
		join:      opts.Join,
		readFile:  opts.ReadFile,
		newID:     opts.NewID,
		state:     opts.Store.State(),
		keys:      defaultKeys(),
		help:      help.New(),
		palette:   newPalette(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		status:    "ready",
	}
	if opts.Money != nil {
		m.money = *opts.Money
	} else {
		m.money = NewMoney(language.Spanish)
	}
	if m.readFile == nil {
		m.readFile = os.ReadFile
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.unsubscribe = opts.Store.Subscribe(m.offer)
	return m
}

// offer queues st for the UI goroutine, replacing an undelivered older one.
func (m *Model) offer(st session.State) {
	for {
		select {
		case m.updates <- st:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

// Close stops observing the store.
func (m *Model) Close() {
	m.unsubscribe()
}

func (m *Model) waitForState() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		return stateMsg{state: <-ch}
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForState(), m.spinner.Tick}
	if m.join != "" {
		_, cmd := m.execute("join " + m.join)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// ─── update ──────────────────────────────────────────────────────────────────

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The palette intercepts all input while open.
	if m.palette.Visible() {
		if _, ok := msg.(tea.KeyMsg); ok {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, cmd
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width

	case stateMsg:
		if msg.state.Version >= m.state.Version {
			m.state = msg.state
		}
		return m, m.waitForState()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case extractedMsg:
		m.finishExtraction(msg)

	case loadedMsg:
		switch {
		case msg.err == nil:
			m.setStatus("loaded session " + msg.id)
		case errors.Is(msg.err, gateway.ErrNotFound):
			m.setStatus("started a new session")
		default:
			m.setError("load failed, use retry: " + msg.err.Error())
		}

	case retriedMsg:
		if msg.err != nil {
			m.setError("retry failed: " + msg.err.Error())
		} else {
			m.setStatus("retry succeeded")
		}

	case paletteSubmitMsg:
		return m.execute(msg.input)

	case paletteCancelMsg:
		m.setStatus("ready")

	case tea.KeyMsg:
		if m.showHelp {
			if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.state.Notice != "" && key.Matches(msg, m.keys.Dismiss) {
			m.dispatch(session.DismissNotice{})
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
		case key.Matches(msg, m.keys.Palette):
			return m, m.palette.Open("")
		}
	}
	return m, nil
}

func (m *Model) dispatch(a session.Action) bool {
	st, ok := m.store.Dispatch(a)
	m.state = st
	return ok
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

func (m *Model) finishExtraction(msg extractedMsg) {
	switch {
	case msg.err != nil:
		m.dispatch(session.ExtractionFailed{Err: msg.err.Error()})
		m.setError("extraction failed, you can type the receipt in with manual")
	case len(msg.lines) == 0:
		m.dispatch(session.ExtractionFailed{Err: "no line items found"})
		m.setError("no line items found, you can type the receipt in with manual")
	default:
		m.dispatch(session.SetProductsForReview{Products: extraction.ToCatalog(msg.lines, m.newID)})
		m.setStatus(fmt.Sprintf("read %d products, check them and confirm", len(msg.lines)))
	}
}

// ─── palette execution ───────────────────────────────────────────────────────

func (m *Model) execute(input string) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(input) == "" {
		return m, nil
	}
	p, err := parseCommand(input, m.state.Step)
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}
	if err := m.run(p); err != nil {
		m.setError(err.Error())
		return m, nil
	}
	return m, m.asyncFor(p)
}

// run applies the synchronous part of a command.
func (m *Model) run(p parsed) error {
	s := m.state.Session
	switch p.name {
	case "scan":
		if m.extractor == nil {
			return errors.New("scanning needs a server, use manual")
		}
	case "manual":
		m.dispatch(session.BeginManualEntry{})
		m.setStatus("add products with add <name> <qty> <price>")
	case "join":
		if m.sync == nil {
			return errors.New("shared sessions need a server")
		}
		if _, err := SessionID(strings.Join(p.args, " ")); err != nil {
			return err
		}
		m.setStatus("loading shared session")

	case "add":
		product, err := reviewProduct(p.args)
		if err != nil {
			return err
		}
		m.dispatch(session.UpsertReviewProduct{Product: product})
		m.setStatus("added " + product.Name)
	case "del":
		product, err := resolveProduct(m.state.Review, p.args[0])
		if err != nil {
			return err
		}
		m.dispatch(session.DeleteReviewProduct{ProductID: product.ID})
		m.setStatus("deleted " + product.Name)
	case "confirm":
		if len(m.state.Review) == 0 {
			return errors.New("add at least one product first")
		}
		m.dispatch(session.SetProductsAndAdvance{Products: m.state.Review})
		m.setStatus("add diners with diner <name>")

	case "diner":
		name := strings.Join(p.args, " ")
		if len(s.Diners) >= models.MaxDiners {
			return fmt.Errorf("a session holds at most %d diners", models.MaxDiners)
		}
		if !m.dispatch(session.AddDiner{Name: name}) {
			return errors.New("diner name required")
		}
		m.setStatus("added " + name)
	case "rmdiner":
		d, err := resolveDiner(s, p.args[0])
		if err != nil {
			return err
		}
		m.dispatch(session.RemoveDiner{DinerID: d.ID})
		m.setStatus("removed " + d.Name)
	case "full":
		d, err := resolveDiner(s, p.args[0])
		if err != nil {
			return err
		}
		product, err := resolveProduct(s.MasterProducts, strings.Join(p.args[1:], " "))
		if err != nil {
			return err
		}
		if !m.dispatch(session.AddFullItem{DinerID: d.ID, ProductID: product.ID}) {
			return fmt.Errorf("no %s left", product.Name)
		}
		m.setStatus(fmt.Sprintf("%s takes %s", d.Name, product.Name))
	case "share":
		product, err := resolveProduct(s.MasterProducts, p.args[0])
		if err != nil {
			return err
		}
		ids, err := resolveDiners(s, strings.Join(p.args[1:], ""))
		if err != nil {
			return err
		}
		if !m.dispatch(session.ShareItem{ProductID: product.ID, DinerIDs: ids}) {
			return fmt.Errorf("no %s left", product.Name)
		}
		m.setStatus(fmt.Sprintf("%s shared by %d", product.Name, len(ids)))
	case "joinshare":
		d, err := resolveDiner(s, p.args[0])
		if err != nil {
			return err
		}
		group, err := resolveGroup(s, p.args[1])
		if err != nil {
			return err
		}
		if !m.dispatch(session.JoinShare{ShareGroupID: group, DinerID: d.ID}) {
			return fmt.Errorf("%s already shares that item", d.Name)
		}
		m.setStatus(d.Name + " joined the share")
	case "unassign":
		d, err := resolveDiner(s, p.args[0])
		if err != nil {
			return err
		}
		item, err := resolveItem(d, p.args[1])
		if err != nil {
			return err
		}
		m.dispatch(session.RemoveItem{DinerID: d.ID, Key: item.Key()})
		m.setStatus(fmt.Sprintf("removed %s from %s", item.Name, d.Name))
	case "clear":
		d, err := resolveDiner(s, p.args[0])
		if err != nil {
			return err
		}
		m.dispatch(session.ClearDinerItems{DinerID: d.ID})
		m.setStatus("cleared " + d.Name)
	case "discount":
		pct, capArg := p.args[0], "0"
		if len(p.args) > 1 {
			capArg = p.args[1]
		}
		if err := checkDiscount(pct, capArg); err != nil {
			return err
		}
		m.dispatch(session.ApplyDiscount{Percentage: pct, Cap: capArg})
		m.setStatus("discount updated")
	case "edit":
		m.dispatch(session.EditProducts{})
		m.setStatus("confirm again when the products are right")

	case "publish":
		if m.sync == nil {
			return errors.New("sharing needs a server")
		}
		if !m.dispatch(session.Publish{}) {
			m.setStatus("already shared: " + m.link())
			return nil
		}
		m.setStatus("shared: " + m.link())
	case "retry":
		if m.sync == nil {
			return errors.New("nothing to retry offline")
		}
		m.setStatus("retrying")
	case "link":
		if !m.state.Shared {
			return errors.New("this session is not shared, use publish")
		}
		m.setStatus(m.link())
	case "reset":
		m.dispatch(session.ResetSession{})
		m.setStatus("started over: " + ShareLink(m.baseURL, ""))
	}
	return nil
}

// asyncFor returns the command finishing p, if it has an asynchronous part.
func (m *Model) asyncFor(p parsed) tea.Cmd {
	switch p.name {
	case "quit":
		return tea.Quit
	case "scan":
		path := strings.Join(p.args, " ")
		data, err := m.readFile(path)
		if err != nil {
			m.setError("read receipt: " + err.Error())
			return nil
		}
		if !m.dispatch(session.BeginExtraction{}) {
			return nil
		}
		m.setStatus("reading receipt")
		extractor := m.extractor
		mimeType := http.DetectContentType(data)
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
			defer cancel()
			lines, err := extractor.Extract(ctx, data, mimeType)
			return extractedMsg{lines: lines, err: err}
		}
	case "join":
		id, _ := SessionID(strings.Join(p.args, " "))
		syncer := m.sync
		return func() tea.Msg {
			return loadedMsg{id: id, err: syncer.Load(context.Background(), id)}
		}
	case "retry":
		syncer := m.sync
		return func() tea.Msg {
			return retriedMsg{err: syncer.Retry(context.Background())}
		}
	}
	return nil
}

func (m *Model) link() string {
	return ShareLink(m.baseURL, m.state.SessionID)
}

func checkDiscount(pct, capArg string) error {
	p, err := numparse.Parse(pct)
	if err != nil || p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("discount must be a percentage between 0 and 100, got %q", pct)
	}
	c, err := numparse.Parse(capArg)
	if err != nil || c.IsNegative() {
		return fmt.Errorf("cap must be a non-negative amount, got %q", capArg)
	}
	return nil
}

// Run shows the model full screen until the user quits.
func Run(m *Model) error {
	defer m.Close()
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
