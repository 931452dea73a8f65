package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agent_office/internal/config"
	"agent_office/internal/domain"
	"agent_office/internal/engine"
	"agent_office/internal/feed"
	"agent_office/internal/floorplan"
)

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.agent_office/config.toml)")
	addrFlag := flag.String("addr", "", "officed base URL override")
	floorplanFlag := flag.String("floorplan", "", "floorplan yaml path override")
	orchestratorFlag := flag.String("orchestrator", "", "orchestrator agent id override")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	baseURL := firstNonEmpty(*addrFlag, cfg.Engine.BaseURL, "http://localhost:4500")
	planPath := firstNonEmpty(*floorplanFlag, cfg.Source.FloorplanPath, "")
	plan, err := floorplan.LoadOrDefault(planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load floorplan: %v\n", err)
		os.Exit(1)
	}

	c := &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := waitHealth(c, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "officed health check failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logFile, err := os.OpenFile("monitor.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.LstdFlags)

	feedClient := feed.New(baseURL, config.DurationMS(cfg.Engine.RetryDelayMS, 2*time.Second), logger)
	eng := engine.New(engine.Config{
		OrchestratorID:    firstNonEmpty(*orchestratorFlag, cfg.Engine.OrchestratorID),
		ExcludedRoles:     cfg.Engine.ExcludedRoles,
		ExcludedAgents:    cfg.Engine.ExcludedAgents,
		PullInterval:      config.DurationMS(cfg.Engine.PullIntervalMS, 20*time.Second),
		RecomposeInterval: config.DurationMS(cfg.Engine.RecomposeIntervalMS, 5*time.Second),
		MeetingDuration:   config.DurationMS(cfg.Engine.MeetingDurationMS, 30*time.Second),
		WalkSettleDelay:   config.DurationMS(cfg.Engine.WalkSettleMS, 1500*time.Millisecond),
		SpawnTTL:          config.DurationMS(cfg.Engine.SpawnTTLMS, 10*time.Second),
	}, plan, feedClient, logger)
	defer eng.Close()

	app := tview.NewApplication()

	var mu sync.Mutex
	var last engine.Snapshot

	officeBox := tview.NewBox()
	officeBox.SetTitle("Office (Enter inspect agent, F10 quit)").SetBorder(true)
	officeBox.SetDrawFunc(func(screen tcell.Screen, x, y, w, h int) (int, int, int, int) {
		innerX, innerY, innerW, innerH := x+1, y+1, w-2, h-2
		mu.Lock()
		snap := last
		mu.Unlock()
		drawOffice(screen, innerX, innerY, innerW, innerH, plan, snap)
		return innerX, innerY, innerW, innerH
	})

	agentsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	agentsTable.SetTitle("Agents").SetBorder(true)

	sessionView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	sessionView.SetTitle("Session").SetBorder(true)
	sessionView.SetText("Select an agent and press Enter.")

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText("Connected to " + c.baseURL)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(agentsTable, 0, 1, true).
		AddItem(sessionView, 0, 1, false)
	mainLayout := tview.NewFlex().
		AddItem(officeBox, 0, 2, false).
		AddItem(right, 0, 1, true)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 1, true).
		AddItem(statusView, 3, 0, false)

	agentIDs := make([]string, 0, len(plan.Agents))
	for _, a := range plan.Agents {
		agentIDs = append(agentIDs, a.ID)
	}
	sort.Strings(agentIDs)

	eng.SetUpdateHook(func(snap engine.Snapshot) {
		mu.Lock()
		last = snap
		mu.Unlock()
		app.QueueUpdateDraw(func() {
			renderAgentsTable(agentsTable, agentIDs, plan, snap)
			statusView.SetText(renderStatusLine(c.baseURL, snap))
		})
	})

	agentsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(agentIDs) {
			return
		}
		id := agentIDs[row-1]
		go func() {
			msgs, err := c.listSession(id)
			app.QueueUpdateDraw(func() {
				if err != nil {
					sessionView.SetText(fmt.Sprintf("error: %v", err))
					return
				}
				sessionView.SetText(renderSession(id, msgs))
			})
		}()
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyF10 {
			app.Stop()
			return nil
		}
		return event
	})

	eng.Start(ctx)
	go func() {
		feedClient.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(agentsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

var stateColors = map[domain.VisualState]tcell.Color{
	domain.VisualStateActive:  tcell.ColorGreen,
	domain.VisualStateRecent:  tcell.ColorYellow,
	domain.VisualStateIdle:    tcell.ColorGray,
	domain.VisualStateMeeting: tcell.ColorDeepSkyBlue,
	domain.VisualStateWalking: tcell.ColorAqua,
}

func drawOffice(screen tcell.Screen, x, y, w, h int, plan floorplan.Plan, snap engine.Snapshot) {
	put := func(pos domain.Position, r rune, style tcell.Style) {
		if pos.X < 0 || pos.Y < 0 || pos.X >= w || pos.Y >= h {
			return
		}
		screen.SetContent(x+pos.X, y+pos.Y, r, nil, style)
	}
	furniture := tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)

	for _, a := range plan.Agents {
		put(a.Desk, '▤', furniture)
	}
	for _, p := range plan.Coffee {
		put(p, 'c', furniture)
	}
	for _, p := range plan.Lounge {
		put(p, '~', furniture)
	}
	put(plan.Meeting.Presenter, '◇', furniture)
	for _, p := range plan.Meeting.Chairs {
		put(p, 'o', furniture)
	}

	for _, rec := range snap.Spawns {
		if cfg, ok := plan.Agent(rec.ParentID); ok {
			put(domain.Position{X: cfg.Desk.X + 1, Y: cfg.Desk.Y - 1}, '✦', tcell.StyleDefault.Foreground(tcell.ColorFuchsia))
		}
	}

	for _, a := range plan.Agents {
		st, ok := snap.States[a.ID]
		if !ok {
			continue
		}
		glyph := '?'
		if a.DisplayName != "" {
			glyph = []rune(a.DisplayName)[0]
		}
		color, ok := stateColors[st.VisualState]
		if !ok {
			color = tcell.ColorWhite
		}
		put(st.Position, glyph, tcell.StyleDefault.Foreground(color).Bold(true))
		if st.ChatBubble != "" {
			bubble := []rune(st.ChatBubble)
			for i, r := range bubble {
				put(domain.Position{X: st.Position.X + 1 + i, Y: st.Position.Y - 1}, r, tcell.StyleDefault)
			}
		}
	}
}

func renderAgentsTable(table *tview.Table, agentIDs []string, plan floorplan.Plan, snap engine.Snapshot) {
	table.Clear()
	headers := []string{"Agent", "State", "Behavior", "Pos"}
	for col, hdr := range headers {
		table.SetCell(0, col, tview.NewTableCell("[::b]"+hdr).SetSelectable(false))
	}
	for row, id := range agentIDs {
		cfg, _ := plan.Agent(id)
		st, ok := snap.States[id]
		name := cfg.DisplayName
		if name == "" {
			name = id
		}
		state, behavior, pos := "-", "-", "-"
		color := tcell.ColorWhite
		if ok {
			state = string(st.VisualState)
			behavior = string(st.Behavior)
			pos = fmt.Sprintf("%d,%d", st.Position.X, st.Position.Y)
			if c, found := stateColors[st.VisualState]; found {
				color = c
			}
		}
		table.SetCell(row+1, 0, tview.NewTableCell(name))
		table.SetCell(row+1, 1, tview.NewTableCell(state).SetTextColor(color))
		table.SetCell(row+1, 2, tview.NewTableCell(behavior))
		table.SetCell(row+1, 3, tview.NewTableCell(pos))
	}
}

func renderStatusLine(baseURL string, snap engine.Snapshot) string {
	if snap.Meeting != nil {
		return fmt.Sprintf(
			"Connected to %s | meeting: %q with %d participants since %s",
			baseURL,
			snap.Meeting.Topic,
			len(snap.Meeting.ParticipantIDs),
			snap.Meeting.StartTime.Format("15:04:05"),
		)
	}
	return fmt.Sprintf("Connected to %s | agents: %d | spawns: %d", baseURL, len(snap.States), len(snap.Spawns))
}

func renderSession(agentID string, msgs []domain.TranscriptMessage) string {
	if len(msgs) == 0 {
		return fmt.Sprintf("No session history for %s.", agentID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[-:-:-]\n", agentID)
	for _, msg := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.Author, msg.Body)
	}
	return b.String()
}

func (c *client) listSession(agentID string) ([]domain.TranscriptMessage, error) {
	resp, err := c.http.Get(c.baseURL + "/api/agents/" + agentID + "/session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var body struct {
		Messages []domain.TranscriptMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func waitHealth(c *client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := c.http.Get(c.baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for /healthz")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
