package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docbot/internal/archive"
	"docbot/internal/config"
	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/notifications"
	"docbot/internal/services"
	"docbot/internal/statestore"
	"docbot/internal/textutil"
	"docbot/internal/transport"
)

// Manager routes inbound messages to the sender's active workflow and owns
// persistence, delivery and archival around it.
type Manager struct {
	cfg      *config.Config
	registry *Registry
	client   transport.Client
	env      *Env
	archiver *archive.Archiver
	metrics  *Metrics
	notifier notifications.Service
	logger   *slog.Logger

	// mu serializes message handling, Finalize included.
	mu sync.Mutex

	// storeMu guards the store swap only, so status reads never wait on a
	// running conversation.
	storeMu  sync.RWMutex
	store    statestore.Store
	degraded bool
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithArchiver overrides the archiver used after delivery.
func WithArchiver(a *archive.Archiver) ManagerOption {
	return func(m *Manager) {
		if a != nil {
			m.archiver = a
		}
	}
}

// WithMetrics records conversation metrics.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithNotifier alerts the operator about failed workflows and store
// degradation.
func WithNotifier(svc notifications.Service) ManagerOption {
	return func(m *Manager) {
		m.notifier = svc
	}
}

// NewManager constructs a manager.
func NewManager(cfg *config.Config, registry *Registry, store statestore.Store, client transport.Client, env *Env, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "manager")
	m := &Manager{
		cfg:      cfg,
		registry: registry,
		client:   client,
		env:      env,
		logger:   logger,
		store:    store,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.archiver == nil {
		m.archiver = archive.New(nil, logger)
	}
	if m.store == nil {
		m.store = statestore.NewMemory(cfg.StateTTL())
		m.degraded = true
	}
	return m
}

// HandleMessage processes one inbound message. Messages are handled one at a
// time; failures are answered with a reply and never returned.
func (m *Manager) HandleMessage(ctx context.Context, msg transport.Message) {
	if msg.FromMe || msg.Sender == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = services.WithSender(ctx, msg.Sender)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "message handler panicked", "message_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this message sequence as a bug"),
			)
			m.reply(ctx, msg.Sender, GenericErrorMessage)
		}
	}()

	if msg.HasMedia() {
		m.metrics.message(string(msg.Media.Kind))
	} else {
		m.metrics.message("text")
	}

	rec, found, err := m.load(ctx, msg.Sender)
	if err != nil {
		logging.ErrorWithContext(logger, "state load failed", "state_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state store"),
		)
		m.reply(ctx, msg.Sender, GenericErrorMessage)
		return
	}
	if !found {
		m.startWorkflow(ctx, msg)
		return
	}

	wf, def, base, err := Decode(m.registry, m.env, msg.Sender, rec)
	if err != nil {
		logging.ErrorWithContext(logger, "stored workflow unreadable; state discarded", "state_decode_failed",
			logging.String(logging.FieldWorkflow, rec.WorkflowType),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the state was written by an incompatible version"),
			logging.String(logging.FieldImpact, "the user has to start again"),
		)
		m.deleteState(ctx, msg.Sender)
		m.reply(ctx, msg.Sender, GenericErrorMessage)
		return
	}
	ctx = services.WithTaskID(ctx, base.TaskID)
	ctx = services.WithWorkflow(ctx, string(def.Kind))
	rec.CreatedAt = nonZero(rec.CreatedAt)

	if msg.HasMedia() {
		m.handleFile(ctx, msg, wf, def, base, rec.CreatedAt)
		return
	}
	m.handleText(ctx, msg, wf, def, base, rec.CreatedAt)
}

func (m *Manager) startWorkflow(ctx context.Context, msg transport.Message) {
	if msg.HasMedia() {
		return
	}
	def, ok := m.registry.ForCommand(msg.Text)
	if !ok {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	taskID := uuid.NewString()
	base := Base{
		TaskID:   taskID,
		TaskDir:  filepath.Join(m.cfg.Paths.DownloadBaseDir, textutil.SanitizeToken(msg.Sender), taskID),
		SenderID: msg.Sender,
	}
	if err := os.MkdirAll(base.TaskDir, 0o755); err != nil {
		logging.ErrorWithContext(logger, "create task directory failed", "task_dir_failed",
			logging.String("task_dir", base.TaskDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.download_base_dir permissions"),
		)
		m.reply(ctx, msg.Sender, fmt.Sprintf("Sorry, failed to start the %s process.", def.Kind))
		return
	}
	wf := def.Start(base, m.env)
	if err := m.persist(ctx, base, wf, time.Now().UTC()); err != nil {
		_ = os.RemoveAll(base.TaskDir)
		m.reply(ctx, msg.Sender, fmt.Sprintf("Sorry, failed to start the %s process.", def.Kind))
		return
	}
	m.metrics.workflowStarted(def.Kind)
	logger.Info("workflow started",
		logging.String(logging.FieldWorkflow, string(def.Kind)),
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	m.reply(ctx, msg.Sender, def.Instructions)
}

func (m *Manager) handleFile(ctx context.Context, msg transport.Message, wf Workflow, def Definition, base Base, created time.Time) {
	logger := logging.WithContext(ctx, m.logger)
	file, err := saveMedia(base.TaskDir, msg)
	if err != nil {
		logging.ErrorWithContext(logger, "saving attachment failed", "media_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space in the download directory"),
		)
		m.reply(ctx, msg.Sender, "Failed to save the file. Please send it again.")
		return
	}
	result, err := wf.HandleFile(ctx, file)
	if err != nil {
		m.metrics.failure(def.Kind, services.Kind(err))
		logger.Warn("file handling failed",
			logging.String("file", file.Name),
			logging.Error(err),
			logging.String(logging.FieldEventType, "file_handling_failed"),
			logging.String(logging.FieldErrorHint, "inspect the task directory"),
		)
		_ = os.Remove(file.Path)
		_ = m.persist(ctx, base, wf, created)
		m.reply(ctx, msg.Sender, replyFor(err, "Failed to process the file. Please send it again."))
		return
	}
	if !result.Accepted {
		_ = os.Remove(file.Path)
	}
	_ = m.persist(ctx, base, wf, created)
	m.reply(ctx, msg.Sender, result.Reply)
}

func (m *Manager) handleText(ctx context.Context, msg transport.Message, wf Workflow, def Definition, base Base, created time.Time) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	done, reply, err := wf.HandleCommand(ctx, Command{Text: msg.Text, QuotedID: msg.QuotedID, MessageID: msg.ID})
	if err != nil {
		m.metrics.failure(def.Kind, services.Kind(err))
		logger.Warn("command failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "command_failed"),
			logging.String(logging.FieldErrorHint, "the workflow stays active; the user can retry"),
		)
		_ = m.persist(ctx, base, wf, created)
		m.reply(ctx, msg.Sender, replyFor(err, def.Failure))
		return
	}
	m.reply(ctx, msg.Sender, reply)
	if !done {
		_ = m.persist(ctx, base, wf, created)
		return
	}
	m.finish(ctx, msg.Sender, wf, def, base)
}

// finish finalizes wf, delivers its outputs and releases every resource the
// conversation held. State is deleted whatever the outcome.
func (m *Manager) finish(ctx context.Context, sender string, wf Workflow, def Definition, base Base) {
	logger := logging.WithContext(ctx, m.logger)
	start := time.Now()
	defer m.deleteState(ctx, sender)

	m.reply(ctx, sender, def.Processing)
	outputs, err := wf.Finalize(ctx)
	if err != nil {
		m.metrics.failure(def.Kind, services.Kind(err))
		m.metrics.workflowCompleted(def.Kind, "failed", time.Since(start))
		logging.ErrorWithContext(logger, "finalize failed", "workflow_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect tool diagnostics logged above"),
			logging.String(logging.FieldImpact, "no outputs were delivered"),
		)
		m.reply(ctx, sender, replyFor(err, def.Failure))
		m.alert(ctx, func(svc notifications.Service) error {
			return svc.NotifyWorkflowFailed(ctx, def.Kind.DisplayName(), sender, err)
		})
		m.archive(ctx, base, wf, nil)
		return
	}

	var delivered []archive.Delivered
	for _, out := range outputs {
		sentID, sendErr := m.client.SendMedia(ctx, sender, out.Path, out.Caption, out.FileName)
		if sendErr != nil {
			logging.WarnWithContext(logger, "delivering output failed", "delivery_failed",
				logging.String("file", out.FileName),
				logging.Error(sendErr),
				logging.String(logging.FieldErrorHint, "check the messaging gateway"),
				logging.String(logging.FieldImpact, "the user did not receive this file"),
			)
			continue
		}
		delivered = append(delivered, archive.Delivered{Path: out.Path, SentID: sentID})
	}

	outcome := "success"
	switch {
	case len(outputs) == 0:
		outcome = "empty"
		m.reply(ctx, sender, def.Empty)
	case len(delivered) == 0:
		outcome = "undelivered"
		m.reply(ctx, sender, def.Failure)
	default:
		if def.Completion != nil {
			m.reply(ctx, sender, def.Completion(len(delivered)))
		}
	}
	if reporter, ok := wf.(Reporter); ok && len(outputs) > 0 {
		if text := reporter.Report(); text != "" {
			m.reply(ctx, sender, text)
		}
	}
	m.metrics.workflowCompleted(def.Kind, outcome, time.Since(start))
	logger.Info("workflow finished",
		logging.String(logging.FieldEventType, "workflow_finished"),
		logging.String("outcome", outcome),
		logging.Int("outputs", len(outputs)),
		logging.Int("delivered", len(delivered)),
		logging.Duration("elapsed", time.Since(start)),
	)
	m.archive(ctx, base, wf, delivered)
}

func (m *Manager) archive(ctx context.Context, base Base, wf Workflow, delivered []archive.Delivered) {
	result := m.archiver.Archive(ctx, base.TaskDir, wf.Inputs(), delivered)
	if len(result.Errors) > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "archive incomplete", "archive_incomplete",
			logging.Int("errors", len(result.Errors)),
			logging.Int("moved", len(result.Moved)),
			logging.String(logging.FieldErrorHint, "stale cleanup removes leftovers later"),
		)
	}
}

func (m *Manager) reply(ctx context.Context, to, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := m.client.SendText(ctx, to, text); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "reply failed", "reply_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the messaging gateway"),
		)
	}
}

func (m *Manager) persist(ctx context.Context, base Base, wf Workflow, created time.Time) error {
	rec, err := Encode(base, wf)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "encode state failed", "state_encode_failed",
			logging.Error(err))
		return err
	}
	rec.CreatedAt = created
	err = m.withStore(ctx, "save", func(store statestore.Store) error {
		return store.Save(ctx, base.SenderID, rec)
	})
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "state save failed", "state_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state store"),
			logging.String(logging.FieldImpact, "this turn is lost"),
		)
	}
	return err
}

func (m *Manager) load(ctx context.Context, sender string) (statestore.Record, bool, error) {
	var (
		rec   statestore.Record
		found bool
	)
	err := m.withStore(ctx, "load", func(store statestore.Store) error {
		var loadErr error
		rec, found, loadErr = store.Load(ctx, sender)
		return loadErr
	})
	if errors.Is(err, statestore.ErrCorruptRecord) {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "stored state unreadable; discarded", "state_record_corrupt",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the record was written by an incompatible version or edited by hand"),
			logging.String(logging.FieldImpact, "this sender starts a new conversation"),
		)
		m.deleteState(ctx, sender)
		return statestore.Record{}, false, nil
	}
	return rec, found, err
}

func (m *Manager) deleteState(ctx context.Context, sender string) {
	err := m.withStore(ctx, "delete", func(store statestore.Store) error {
		_, deleteErr := store.Delete(ctx, sender)
		return deleteErr
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "state delete failed", "state_delete_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the entry expires with its TTL"),
		)
	}
}

func (m *Manager) currentStore() (statestore.Store, bool) {
	m.storeMu.RLock()
	defer m.storeMu.RUnlock()
	return m.store, m.degraded
}

// withStore runs fn against the current store. When the backend itself stops
// answering, the manager switches to an in-memory store for the rest of the
// process and retries once. Unreadable records and failures of a backend that
// still passes its health check are returned as is.
func (m *Manager) withStore(ctx context.Context, op string, fn func(statestore.Store) error) error {
	store, degraded := m.currentStore()
	err := fn(store)
	if err == nil || degraded || errors.Is(err, statestore.ErrCorruptRecord) || store.Health(ctx) {
		return err
	}

	m.storeMu.Lock()
	swapped := m.store == store
	if swapped {
		m.store = statestore.NewMemory(m.cfg.StateTTL())
		m.degraded = true
	}
	fallback := m.store
	m.storeMu.Unlock()

	if swapped {
		backend := store.Backend()
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "state store failed; degrading to memory", "state_store_degraded",
			logging.String(logging.FieldOperation, op),
			logging.String("backend", backend),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restore redis and restart docbot"),
			logging.String(logging.FieldImpact, "conversation state no longer survives restarts"),
		)
		_ = store.Close()
		m.metrics.storeDegraded()
		m.alert(ctx, func(svc notifications.Service) error {
			return svc.NotifyStoreDegraded(ctx, backend, err)
		})
	}
	return fn(fallback)
}

// alert delivers an operator notification. Delivery failures are logged and
// never affect the conversation.
func (m *Manager) alert(ctx context.Context, send func(notifications.Service) error) {
	if m.notifier == nil {
		return
	}
	if err := send(m.notifier); err != nil {
		logging.WithContext(ctx, m.logger).Warn("operator notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// ActiveSessions returns every live conversation keyed by sender.
func (m *Manager) ActiveSessions(ctx context.Context) (map[string]statestore.Record, error) {
	store, _ := m.currentStore()
	return store.AllActive(ctx)
}

// ActiveTaskDirs returns the cleaned task directories of live conversations.
func (m *Manager) ActiveTaskDirs(ctx context.Context) (map[string]struct{}, error) {
	sessions, err := m.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]struct{}, len(sessions))
	for _, rec := range sessions {
		if rec.TaskDir != "" {
			dirs[filepath.Clean(rec.TaskDir)] = struct{}{}
		}
	}
	return dirs, nil
}

// StoreStatus reports the active state backend and whether it answers.
func (m *Manager) StoreStatus(ctx context.Context) (backend string, healthy bool) {
	store, _ := m.currentStore()
	return store.Backend(), store.Health(ctx)
}

// Registry exposes the workflow definitions.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// saveMedia writes the attachment into dir and describes it.
func saveMedia(dir string, msg transport.Message) (IncomingFile, error) {
	media := msg.Media
	id := textutil.SanitizeFileName(msg.ID)
	if id == "" {
		id = uuid.NewString()
	}
	original := ""
	if media.FileName != "" {
		original = textutil.SanitizeFileName(filepath.Base(media.FileName))
	}
	image := media.Kind == transport.MediaImage || strings.HasPrefix(media.MimeType, "image/")
	var name string
	switch {
	case media.MimeType == "application/pdf":
		name = id + ".pdf"
	case image:
		name = id + ".jpg"
	default:
		name = id + mediaExtension(media)
	}
	path := filepath.Join(dir, name)
	if err := fileutil.WriteFileAtomic(path, media.Data, 0o644); err != nil {
		return IncomingFile{}, services.Wrap(services.ErrFileProcessing, "manager", "save media", "write attachment", err)
	}
	return IncomingFile{
		MessageID:    msg.ID,
		Name:         name,
		Path:         path,
		OriginalName: original,
		MimeType:     media.MimeType,
		Image:        image,
	}, nil
}

func mediaExtension(media *transport.Media) string {
	if ext := strings.ToLower(filepath.Ext(media.FileName)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(media.MimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
