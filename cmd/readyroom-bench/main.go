// Command readyroom-bench runs an in-process server and drives a full session
// with many concurrent clients: handshake, chat, ready check, countdown and a
// number of running rounds.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"os"
	"os/exec"
	"runtime"
	"runtime/metrics"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/readyroom/internal/hub"
	rrmetrics "github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/internal/registry"
	"github.com/vango-dev/readyroom/pkg/game"
	"github.com/vango-dev/readyroom/pkg/protocol"
	"github.com/vango-dev/readyroom/pkg/server"
)

type profile struct {
	Name         string
	Clients      int
	Rounds       int
	Dwell        time.Duration
	PayloadBytes int
	MaxProcs     int
}

var profiles = map[string]profile{
	"fast": {
		Name:         "fast",
		Clients:      8,
		Rounds:       3,
		Dwell:        50 * time.Millisecond,
		PayloadBytes: 24,
	},
	"standard": {
		Name:         "standard",
		Clients:      64,
		Rounds:       5,
		Dwell:        100 * time.Millisecond,
		PayloadBytes: 64,
	},
	"stress": {
		Name:         "stress",
		Clients:      protocol.MaxEntries,
		Rounds:       10,
		Dwell:        100 * time.Millisecond,
		PayloadBytes: 256,
		MaxProcs:     4,
	},
}

type benchConfig struct {
	Profile      string
	Clients      int
	Rounds       int
	Dwell        time.Duration
	PayloadBytes int
	MaxProcs     int
	Timeout      time.Duration
	JSONOutput   string
}

type benchCounters struct {
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	chatLines      atomic.Uint64
	replies        atomic.Uint64
	sessions       atomic.Uint64
}

type benchErrors struct {
	handshakeFailures atomic.Uint64
	writeFailures     atomic.Uint64
	decodeFailures    atomic.Uint64
	rejected          atomic.Uint64
	timeouts          atomic.Uint64
	totalErrors       atomic.Uint64
}

type samples struct {
	mu        sync.Mutex
	handshake []time.Duration
	reply     []time.Duration
}

func (s *samples) add(dst *[]time.Duration, d time.Duration) {
	s.mu.Lock()
	*dst = append(*dst, d)
	s.mu.Unlock()
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	report, err := runBench(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	writeSummary(os.Stderr, report)
	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		log.Fatalf("write json: %v", err)
	}
}

func parseConfig(args []string) (benchConfig, error) {
	fs := flag.NewFlagSet("readyroom-bench", flag.ContinueOnError)
	profileFlag := fs.String("profile", "standard", "profile: fast|standard|stress")
	clientsFlag := fs.Int("clients", -1, "number of concurrent clients (max 255)")
	roundsFlag := fs.Int("rounds", -1, "server replies each client waits for while running")
	dwellFlag := fs.Duration("dwell", -1, "server dwell before each reply")
	payloadFlag := fs.Int("payload-bytes", -1, "bytes of chat text and input per client")
	maxProcsFlag := fs.Int("max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	timeoutFlag := fs.Duration("timeout", 2*time.Minute, "abort the run after this long")
	jsonFlag := fs.String("json", "-", "JSON output path ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	name := strings.ToLower(strings.TrimSpace(*profileFlag))
	if name == "" {
		name = "standard"
	}
	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:      base.Name,
		Clients:      base.Clients,
		Rounds:       base.Rounds,
		Dwell:        base.Dwell,
		PayloadBytes: base.PayloadBytes,
		MaxProcs:     base.MaxProcs,
		Timeout:      *timeoutFlag,
		JSONOutput:   strings.TrimSpace(*jsonFlag),
	}
	if *clientsFlag != -1 {
		cfg.Clients = *clientsFlag
	}
	if *roundsFlag != -1 {
		cfg.Rounds = *roundsFlag
	}
	if *dwellFlag != -1 {
		cfg.Dwell = *dwellFlag
	}
	if *payloadFlag != -1 {
		cfg.PayloadBytes = *payloadFlag
	}
	if *maxProcsFlag != -1 {
		cfg.MaxProcs = *maxProcsFlag
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Clients <= 0 || cfg.Clients > protocol.MaxEntries {
		return benchConfig{}, fmt.Errorf("-clients must be between 1 and %d", protocol.MaxEntries)
	}
	if cfg.Rounds <= 0 {
		return benchConfig{}, errors.New("-rounds must be > 0")
	}
	if cfg.Dwell <= 0 {
		return benchConfig{}, errors.New("-dwell must be > 0")
	}
	if cfg.PayloadBytes <= 0 {
		return benchConfig{}, errors.New("-payload-bytes must be > 0")
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, errors.New("-max-procs must be >= 0")
	}
	if cfg.Timeout <= 0 {
		return benchConfig{}, errors.New("-timeout must be > 0")
	}
	return cfg, nil
}

// runBench starts a server on loopback, runs every client to completion and
// builds the report.
func runBench(ctx context.Context, cfg benchConfig) (benchReport, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := rrmetrics.New(rrmetrics.WithRegistry(reg))

	h := hub.New(registry.New(cfg.Clients))
	gcfg := game.DefaultConfig()
	gcfg.CountdownTicks = 3
	gcfg.Tick = 20 * time.Millisecond
	gcfg.TickInterval = time.Millisecond
	gcfg.ExchangeInterval = 5 * time.Millisecond
	gcfg.Dwell = cfg.Dwell
	d := game.NewDriver(h, gcfg, game.WithLogger(logger), game.WithMetrics(m))

	scfg := server.DefaultServerConfig()
	scfg.AcceptRate = 0
	srv := server.New(h, d, scfg, server.WithLogger(logger), server.WithMetrics(m, reg))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, fmt.Errorf("listen: %w", err)
	}
	go srv.ServeTCP(ln)
	go d.Run(ctx)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	var (
		counters benchCounters
		errCount benchErrors
		samp     samples
		joined   sync.WaitGroup
		wg       sync.WaitGroup
	)
	lobby := make(chan struct{})

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	start := time.Now()
	joined.Add(cfg.Clients)
	wg.Add(cfg.Clients)
	for i := range cfg.Clients {
		go func() {
			defer wg.Done()
			c := &benchClient{
				index:    i,
				cfg:      cfg,
				counters: &counters,
				errs:     &errCount,
				samples:  &samp,
				joined:   &joined,
				lobby:    lobby,
			}
			if err := c.run(ctx, ln.Addr().String()); err != nil {
				errCount.totalErrors.Add(1)
				if isTimeout(err) || ctx.Err() != nil {
					errCount.timeouts.Add(1)
				}
			}
		}()
	}

	// Nobody reports ready until everyone has been accepted, or the roster
	// would freeze early.
	go func() {
		joined.Wait()
		close(lobby)
	}()
	wg.Wait()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	samp.mu.Lock()
	handshake := slices.Clone(samp.handshake)
	reply := slices.Clone(samp.reply)
	samp.mu.Unlock()
	slices.Sort(handshake)
	slices.Sort(reply)

	return buildReport(cfg, elapsed, handshake, reply, &counters, &errCount, before, after, beforeMetrics, afterMetrics), nil
}

// benchClient plays one client through the whole session.
type benchClient struct {
	index    int
	cfg      benchConfig
	counters *benchCounters
	errs     *benchErrors
	samples  *samples
	joined   *sync.WaitGroup
	lobby    <-chan struct{}

	conn       net.Conn
	r          *bufio.Reader
	joinedOnce sync.Once
}

func (c *benchClient) join() {
	c.joinedOnce.Do(c.joined.Done)
}

func (c *benchClient) run(ctx context.Context, addr string) error {
	defer c.join()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.errs.handshakeFailures.Add(1)
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	c.conn = conn
	c.r = bufio.NewReader(conn)
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sent := time.Now()
	if err := c.send(protocol.NewMessage(protocol.ConnectionRequested)); err != nil {
		c.errs.handshakeFailures.Add(1)
		return err
	}
	if _, err := c.await(protocol.ConnectionAccepted); err != nil {
		c.errs.handshakeFailures.Add(1)
		return fmt.Errorf("handshake: %w", err)
	}
	c.samples.add(&c.samples.handshake, time.Since(sent))

	chat, err := protocol.NewChatRequest([]string{token(c.index, c.cfg.PayloadBytes)})
	if err != nil {
		return err
	}
	if err := c.send(chat); err != nil {
		return err
	}

	c.join()
	select {
	case <-c.lobby:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.send(protocol.NewReadyToStartChanged(true)); err != nil {
		return err
	}
	if _, err := c.await(protocol.GameStarting); err != nil {
		return fmt.Errorf("countdown: %w", err)
	}

	input := []byte(token(c.index, c.cfg.PayloadBytes))
	for round := range c.cfg.Rounds {
		if _, err := c.await(protocol.StubMessage); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		c.counters.replies.Add(1)
		if round > 0 {
			c.samples.add(&c.samples.reply, time.Since(sent))
		}
		if round == c.cfg.Rounds-1 {
			break
		}
		sent = time.Now()
		if err := c.send(protocol.NewMessageWithPayload(protocol.StubMessage, input)); err != nil {
			return err
		}
	}

	if err := c.send(protocol.NewMessage(protocol.ConnectionRejected)); err != nil {
		return err
	}
	if _, err := c.await(protocol.ConnectionRejected); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("leave: %w", err)
	}
	c.counters.sessions.Add(1)
	return nil
}

func (c *benchClient) send(m *protocol.Message) error {
	if err := protocol.WriteMessage(c.conn, m); err != nil {
		c.errs.writeFailures.Add(1)
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	c.counters.framesSent.Add(1)
	c.counters.bytesSent.Add(uint64(protocol.HeaderSize + m.Len()))
	return nil
}

// await reads frames until one of type want arrives. A ConnectionRejected
// that was not asked for means the client was turned away.
func (c *benchClient) await(want protocol.MessageType) (*protocol.Message, error) {
	for {
		m, err := protocol.ReadMessage(c.r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) {
				c.errs.decodeFailures.Add(1)
			}
			return nil, err
		}
		c.counters.framesReceived.Add(1)
		c.counters.bytesReceived.Add(uint64(protocol.HeaderSize + m.Len()))

		if m.Type == protocol.ChatUpdate {
			lines, err := protocol.ParseChatUpdate(m)
			if err != nil {
				c.errs.decodeFailures.Add(1)
				return nil, err
			}
			c.counters.chatLines.Add(uint64(len(lines)))
			continue
		}
		if m.Type == want {
			return m, nil
		}
		if m.Type == protocol.ConnectionRejected {
			c.errs.rejected.Add(1)
			return nil, errors.New("turned away by server")
		}
	}
}

func token(index, size int) string {
	prefix := fmt.Sprintf("c%03d:", index)
	if size <= len(prefix) {
		return prefix[:size]
	}
	return prefix + strings.Repeat("x", size-len(prefix))
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Version   string       `json:"version"`
	Run       runInfo      `json:"run"`
	Workload  workloadInfo `json:"workload"`
	Handshake latencyInfo  `json:"handshake_ms"`
	Reply     latencyInfo  `json:"reply_ms"`
	Traffic   trafficInfo  `json:"traffic"`
	GC        gcInfo       `json:"gc"`
	Errors    errorInfo    `json:"errors"`
}

type runInfo struct {
	Timestamp string  `json:"timestamp"`
	Go        string  `json:"go"`
	OS        string  `json:"os"`
	Arch      string  `json:"arch"`
	CPUCount  int     `json:"cpu_count"`
	ElapsedMS float64 `json:"elapsed_ms"`
	GitCommit string  `json:"git_commit,omitempty"`
}

type workloadInfo struct {
	Profile      string `json:"profile"`
	Clients      int    `json:"clients"`
	Rounds       int    `json:"rounds"`
	DwellMS      int64  `json:"dwell_ms"`
	PayloadBytes int    `json:"payload_bytes"`
	MaxProcs     int    `json:"max_procs"`
}

type latencyInfo struct {
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Max     float64 `json:"max"`
}

type trafficInfo struct {
	Sessions       uint64 `json:"sessions_completed"`
	Replies        uint64 `json:"replies"`
	ChatLines      uint64 `json:"chat_lines_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesReceived uint64 `json:"frames_received"`
	BytesSent      uint64 `json:"bytes_sent"`
	BytesReceived  uint64 `json:"bytes_received"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	HeapLiveMB    float64 `json:"heap_live_mb"`
	NumGC         uint32  `json:"num_gc"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	AllocsObjects uint64  `json:"allocs_objects"`
}

type errorInfo struct {
	TotalErrors       uint64 `json:"total_errors"`
	HandshakeFailures uint64 `json:"handshake_failures"`
	WriteFailures     uint64 `json:"write_failures"`
	DecodeFailures    uint64 `json:"decode_failures"`
	Rejected          uint64 `json:"rejected"`
	Timeouts          uint64 `json:"timeouts"`
}

func latencyOf(sorted []time.Duration) latencyInfo {
	if len(sorted) == 0 {
		return latencyInfo{}
	}
	return latencyInfo{
		Samples: len(sorted),
		Min:     ms(sorted[0]),
		P50:     ms(percentile(sorted, 0.50)),
		P95:     ms(percentile(sorted, 0.95)),
		P99:     ms(percentile(sorted, 0.99)),
		Max:     ms(sorted[len(sorted)-1]),
	}
}

func buildReport(
	cfg benchConfig,
	elapsed time.Duration,
	handshake, reply []time.Duration,
	counters *benchCounters,
	errs *benchErrors,
	before, after runtime.MemStats,
	beforeMetrics, afterMetrics runtimeMetricsSnapshot,
) benchReport {
	return benchReport{
		Version: "1",
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
			ElapsedMS: ms(elapsed),
			GitCommit: gitCommit(),
		},
		Workload: workloadInfo{
			Profile:      cfg.Profile,
			Clients:      cfg.Clients,
			Rounds:       cfg.Rounds,
			DwellMS:      cfg.Dwell.Milliseconds(),
			PayloadBytes: cfg.PayloadBytes,
			MaxProcs:     cfg.MaxProcs,
		},
		Handshake: latencyOf(handshake),
		Reply:     latencyOf(reply),
		Traffic: trafficInfo{
			Sessions:       counters.sessions.Load(),
			Replies:        counters.replies.Load(),
			ChatLines:      counters.chatLines.Load(),
			FramesSent:     counters.framesSent.Load(),
			FramesReceived: counters.framesReceived.Load(),
			BytesSent:      counters.bytesSent.Load(),
			BytesReceived:  counters.bytesReceived.Load(),
		},
		GC: gcInfo{
			AllocMB:       float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			HeapLiveMB:    float64(after.HeapAlloc) / (1024 * 1024),
			NumGC:         after.NumGC - before.NumGC,
			GCCPUFraction: cpuFraction(afterMetrics, beforeMetrics),
			AllocsObjects: afterMetrics.heapAllocsObjects - beforeMetrics.heapAllocsObjects,
		},
		Errors: errorInfo{
			TotalErrors:       errs.totalErrors.Load(),
			HandshakeFailures: errs.handshakeFailures.Load(),
			WriteFailures:     errs.writeFailures.Load(),
			DecodeFailures:    errs.decodeFailures.Load(),
			Rejected:          errs.rejected.Load(),
			Timeouts:          errs.timeouts.Load(),
		},
	}
}

func writeLatency(w io.Writer, title string, l latencyInfo) {
	if l.Samples == 0 {
		fmt.Fprintf(w, "%s: no samples recorded.\n\n", title)
		return
	}
	fmt.Fprintf(w, "%s (%d samples):\n", title, l.Samples)
	fmt.Fprintf(w, "  min: %.2f ms\n", l.Min)
	fmt.Fprintf(w, "  p50: %.2f ms\n", l.P50)
	fmt.Fprintf(w, "  p95: %.2f ms\n", l.P95)
	fmt.Fprintf(w, "  p99: %.2f ms\n", l.P99)
	fmt.Fprintf(w, "  max: %.2f ms\n", l.Max)
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== readyroom session benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Clients: %d\n", report.Workload.Clients)
	fmt.Fprintf(w, "Rounds: %d (dwell %d ms)\n", report.Workload.Rounds, report.Workload.DwellMS)
	fmt.Fprintf(w, "Payload bytes: %d\n", report.Workload.PayloadBytes)
	if report.Workload.MaxProcs > 0 {
		fmt.Fprintf(w, "GOMAXPROCS cap: %d\n", report.Workload.MaxProcs)
	}
	fmt.Fprintf(w, "Elapsed: %.0f ms\n", report.Run.ElapsedMS)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions completed: %d/%d\n", report.Traffic.Sessions, report.Workload.Clients)
	fmt.Fprintf(w, "Replies: %d\n", report.Traffic.Replies)
	fmt.Fprintf(w, "Chat lines received: %d\n", report.Traffic.ChatLines)
	fmt.Fprintf(w, "Frames: %d sent, %d received\n", report.Traffic.FramesSent, report.Traffic.FramesReceived)
	fmt.Fprintf(w, "Bytes: %d sent, %d received\n", report.Traffic.BytesSent, report.Traffic.BytesReceived)
	fmt.Fprintf(w, "Errors: %d\n", report.Errors.TotalErrors)
	fmt.Fprintln(w)

	writeLatency(w, "Handshake (request -> accepted)", report.Handshake)
	writeLatency(w, "Reply (input -> next server reply, includes dwell)", report.Reply)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  heap_live: %.2f MB\n", report.GC.HeapLiveMB)
	fmt.Fprintf(w, "  num_gc:    %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_cpu:    %.2f%%\n", report.GC.GCCPUFraction*100)
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func gitCommit() string {
	if val := strings.TrimSpace(os.Getenv("READYROOM_GIT_COMMIT")); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv("GIT_COMMIT")); val != "" {
		return val
	}
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
