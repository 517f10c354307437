package workflow_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docbot/internal/compress"
	"docbot/internal/config"
	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/operations"
	"docbot/internal/pdfrange"
	"docbot/internal/services"
	"docbot/internal/statestore"
	"docbot/internal/tasks"
	"docbot/internal/testsupport"
	"docbot/internal/tools"
	"docbot/internal/transport"
	"docbot/internal/workflow"
)

const sender = "15550001@s.whatsapp.net"

// opCounter records how often each fake operation ran.
type opCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *opCounter) add(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[op]++
}

func (c *opCounter) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func concat(inputs []string, output string) error {
	var buf bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(output, buf.Bytes(), 0o644)
}

// unreadablePage makes the fake split fail any part starting on it.
const unreadablePage = 13

// fakeOperations mirrors the production operation table without external
// binaries. Inputs whose name contains "broken" fail like a crashed tool.
func fakeOperations(t *testing.T, counter *opCounter) *tasks.Registry {
	t.Helper()
	toolFailure := func(tool services.ToolKind, message string) error {
		return &services.ExternalToolError{Tool: tool, Message: message, Command: "fake", ExitCode: 1, Stderr: "boom"}
	}
	registry, err := tasks.NewRegistry(
		tasks.Define(operations.CompressPDF, func(_ context.Context, args operations.CompressArgs) (operations.CompressResult, error) {
			counter.add(operations.CompressPDF)
			if strings.Contains(args.Input, "broken") {
				return operations.CompressResult{}, toolFailure(services.ToolGhostscript, "Ghostscript could not read the PDF")
			}
			data, err := os.ReadFile(args.Input)
			if err != nil {
				return operations.CompressResult{}, err
			}
			if err := os.WriteFile(args.Output, data[:len(data)/2], 0o644); err != nil {
				return operations.CompressResult{}, err
			}
			outcome, err := compress.Finish(args.Input, args.Output)
			level := args.Level
			if level == compress.LevelAuto {
				level = compress.DefaultLevel
			}
			return operations.CompressResult{Output: args.Output, Level: level, Outcome: outcome}, err
		}),
		tasks.Define(operations.ConvertDocument, func(_ context.Context, args operations.ConvertArgs) (operations.ConvertResult, error) {
			counter.add(operations.ConvertDocument)
			if strings.Contains(args.Input, "broken") {
				return operations.ConvertResult{}, toolFailure(services.ToolLibreOffice, "LibreOffice conversion failed")
			}
			out := filepath.Join(args.OutDir, strings.TrimSuffix(filepath.Base(args.Input), filepath.Ext(args.Input))+".pdf")
			return operations.ConvertResult{Output: out}, fileutil.CopyFile(args.Input, out)
		}),
		tasks.Define(operations.ScanImage, func(_ context.Context, args operations.ScanArgs) (operations.ScanResult, error) {
			counter.add(operations.ScanImage)
			versions := map[string]string{"original": filepath.Base(args.Image)}
			for _, version := range tools.ScanVersions[1:] {
				path := tools.VersionPath(args.OutDir, args.Image, version)
				if err := fileutil.CopyFile(args.Image, path); err != nil {
					return operations.ScanResult{}, err
				}
				versions[version.Name] = filepath.Base(path)
			}
			return operations.ScanResult{Versions: versions}, nil
		}),
		tasks.Define(operations.MarkdownToPDF, func(_ context.Context, args operations.MarkdownArgs) (operations.MarkdownResult, error) {
			counter.add(operations.MarkdownToPDF)
			if source, err := os.ReadFile(args.Input); err == nil && strings.Contains(string(source), "broken") {
				return operations.MarkdownResult{}, toolFailure(services.ToolMarkdown, "All markdown converters failed")
			}
			return operations.MarkdownResult{Output: args.Output, Backend: "fake"}, fileutil.CopyFile(args.Input, args.Output)
		}),
		tasks.Define(operations.MergePDFs, func(_ context.Context, args operations.MergeArgs) (operations.FileResult, error) {
			counter.add(operations.MergePDFs)
			return operations.FileResult{Output: args.Output}, concat(args.Inputs, args.Output)
		}),
		tasks.Define(operations.ImagesToPDF, func(_ context.Context, args operations.ImagesArgs) (operations.FileResult, error) {
			counter.add(operations.ImagesToPDF)
			return operations.FileResult{Output: args.Output}, concat(args.Images, args.Output)
		}),
		tasks.Define(operations.SplitPDF, func(_ context.Context, args operations.SplitArgs) (operations.SplitResult, error) {
			counter.add(operations.SplitPDF)
			var result operations.SplitResult
			for _, def := range pdfrange.FillGaps(args.Ranges, args.TotalPages) {
				if !def.Requested && !args.IncludeRest {
					continue
				}
				if def.Start == unreadablePage {
					result.Failed = append(result.Failed, operations.SplitFailure{Range: def.Range, Error: "page unreadable"})
					continue
				}
				out := filepath.Join(args.OutDir, operations.SplitPartName(args.Base, def.Range))
				if err := os.WriteFile(out, []byte(def.String()), 0o644); err != nil {
					return result, err
				}
				result.Parts = append(result.Parts, operations.SplitPart{Range: def.Range, Path: out, Filler: !def.Requested})
			}
			return result, nil
		}),
		tasks.Define(operations.PageCount, func(_ context.Context, _ operations.PageCountArgs) (operations.PageCountResult, error) {
			counter.add(operations.PageCount)
			return operations.PageCountResult{Pages: 30}, nil
		}),
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry
}

// harness wires a Manager against fakes. With async enabled a worker
// heartbeat is registered so submissions are enqueued rather than run inline.
type harness struct {
	cfg     *config.Config
	client  *transport.LogClient
	store   statestore.Store
	counter *opCounter
	env     *workflow.Env
	manager *workflow.Manager
	tasks   *tasks.Store
	worker  *tasks.Worker
}

func newHarness(t *testing.T, async bool, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	var cfgOpts []testsupport.ConfigOption
	if async {
		cfgOpts = append(cfgOpts, testsupport.WithAsyncTasks())
	}
	cfg := testsupport.NewConfig(t, cfgOpts...)
	h := &harness{
		cfg:     cfg,
		client:  transport.NewLogClient(logging.NewNop()),
		store:   statestore.NewMemory(cfg.StateTTL()),
		counter: &opCounter{},
	}
	registry := fakeOperations(t, h.counter)
	if async {
		h.tasks = testsupport.MustOpenTaskStore(t, cfg)
		h.worker = tasks.NewWorker(cfg, h.tasks, registry, logging.NewNop())
		if err := h.tasks.Heartbeat(context.Background(), tasks.WorkerInfo{ID: h.worker.ID(), Hostname: "test", PID: 1, Concurrency: 1}); err != nil {
			t.Fatalf("Heartbeat failed: %v", err)
		}
	}
	dispatcher := tasks.NewDispatcher(cfg, h.tasks, registry, logging.NewNop())
	poller := tasks.NewPoller(cfg, h.tasks, logging.NewNop())
	h.env = workflow.NewEnv(cfg, dispatcher, poller, logging.NewNop())
	h.manager = workflow.NewManager(cfg, workflow.DefaultRegistry(), h.store, h.client, h.env, logging.NewNop(), opts...)
	return h
}

// drain runs queued tasks until none are left.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for {
		worked, err := h.worker.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if !worked {
			return
		}
	}
}

func (h *harness) text(text string) {
	h.manager.HandleMessage(context.Background(), transport.Message{Sender: sender, ID: "T-" + text, Text: text})
}

func (h *harness) textWithID(id, text string) {
	h.manager.HandleMessage(context.Background(), transport.Message{Sender: sender, ID: id, Text: text})
}

func (h *harness) reply(quoted, text string) {
	h.manager.HandleMessage(context.Background(), transport.Message{Sender: sender, ID: "R-" + quoted + text, Text: text, QuotedID: quoted})
}

func (h *harness) pdf(id, name, content string) {
	h.manager.HandleMessage(context.Background(), transport.Message{
		Sender: sender,
		ID:     id,
		Media:  &transport.Media{Kind: transport.MediaDocument, MimeType: "application/pdf", FileName: name, Data: []byte(content)},
	})
}

func (h *harness) document(id, name, content string) {
	h.manager.HandleMessage(context.Background(), transport.Message{
		Sender: sender,
		ID:     id,
		Media:  &transport.Media{Kind: transport.MediaDocument, MimeType: "application/octet-stream", FileName: name, Data: []byte(content)},
	})
}

func (h *harness) image(id, content string) {
	h.manager.HandleMessage(context.Background(), transport.Message{
		Sender: sender,
		ID:     id,
		Media:  &transport.Media{Kind: transport.MediaImage, MimeType: "image/jpeg", Data: []byte(content)},
	})
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	texts := h.client.Texts()
	if len(texts) == 0 {
		t.Fatal("no text replies sent")
	}
	return texts[len(texts)-1]
}

func (h *harness) record(t *testing.T) (statestore.Record, bool) {
	t.Helper()
	rec, found, err := h.store.Load(context.Background(), sender)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return rec, found
}

func (h *harness) mediaDir() string {
	return filepath.Join(h.cfg.Paths.DownloadBaseDir, "15550001_s.whatsapp.net", "All-Media")
}

func containsText(texts []string, want string) bool {
	for _, text := range texts {
		if strings.Contains(text, want) {
			return true
		}
	}
	return false
}
