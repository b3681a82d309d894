package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/ansible"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/logstream"
	"autovpn-backend/internal/pkg/secretbox"
	"autovpn-backend/internal/store"
	"autovpn-backend/pkg/utils"
)

type RunStore interface {
	CreateRun(ctx context.Context, r *store.Run) error
	Run(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context) ([]*store.Run, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	FinishRun(ctx context.Context, id, status, url, errMsg string) error
}

type InstallService struct {
	ansible config.AnsibleConfig
	runsDir string
	tempDir string
	runs    RunStore
	box     *secretbox.Box
	runner  ansible.Runner
	ssh     *SSHService
	logger  *logger.Logger

	// executions outlive the request that started them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startMu sync.Mutex
	mu      sync.Mutex
	active  map[string]chan struct{}
}

func NewInstallService(cfg *config.Config, runs RunStore, box *secretbox.Box, runner ansible.Runner, sshService *SSHService, logger *logger.Logger) *InstallService {
	ctx, cancel := context.WithCancel(context.Background())
	return &InstallService{
		ansible: cfg.Ansible,
		runsDir: cfg.State.RunsDir,
		tempDir: cfg.State.TempDir,
		runs:    runs,
		box:     box,
		runner:  runner,
		ssh:     sshService,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]chan struct{}),
	}
}

// Close stops running playbooks and waits for them to record their outcome.
func (s *InstallService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *InstallService) CheckSSH(ctx context.Context, req *model.SSHConfig) (*model.CheckSSHResponse, error) {
	return s.ssh.TestConnection(ctx, req)
}

func (s *InstallService) inventoryPath() string {
	return filepath.Join(s.ansible.Dir, "inventories", s.ansible.InventoryName+".ini")
}

func (s *InstallService) groupVarsPath() string {
	return filepath.Join(s.ansible.Dir, "group_vars", s.ansible.InventoryName+".yml")
}

// WriteConfig renders the inventory and group_vars for the target. raw is the
// request body as received, used to find admin credentials sent in shapes the
// typed model does not cover.
func (s *InstallService) WriteConfig(ctx context.Context, cfg *model.InstallConfig, raw []byte) error {
	adminEmail := firstNonEmpty(cfg.Vars.AdminEmail, cfg.AdminEmail, gjson.GetBytes(raw, "vars.admin_email").String())
	adminPassword := firstNonEmpty(cfg.Vars.AdminPassword, cfg.AdminPassword, gjson.GetBytes(raw, "vars.admin_password").String())
	if adminEmail == "" || adminPassword == "" {
		return utils.NewBadRequestError("admin_email and admin_password are required (in vars or at root)")
	}
	if !utils.IsEmail(adminEmail) {
		return utils.NewValidationError("admin_email", adminEmail)
	}
	if err := utils.ValidateAdminPassword(adminPassword, ""); err != nil {
		return utils.NewBadRequestError(err.Error())
	}
	if err := utils.ValidateHost(cfg.SSH.ElasticIP); err != nil {
		return utils.NewValidationError("elastic_ip", cfg.SSH.ElasticIP)
	}
	if cfg.SSH.SSHPort != 0 {
		if err := utils.ValidatePort(cfg.SSH.SSHPort); err != nil {
			return utils.NewValidationError("ssh_port", cfg.SSH.SSHPort)
		}
	}

	vars := cfg.Vars
	vars.ApplyDefaults()
	if err := utils.ValidatePort(vars.WGPort); err != nil {
		return utils.NewValidationError("wg_port", vars.WGPort)
	}
	if err := utils.ValidateCIDR(vars.WGSubnet); err != nil {
		return utils.NewValidationError("wg_subnet", vars.WGSubnet)
	}

	inventory := ansible.RenderInventory(ansible.Target{
		Host:    cfg.SSH.ElasticIP,
		User:    cfg.SSH.User,
		Port:    cfg.SSH.PortOrDefault(),
		UsesPEM: cfg.SSH.UsesPEM(),
		Group:   s.ansible.InventoryName,
	})
	if err := writeSecure(s.inventoryPath(), []byte(inventory)); err != nil {
		return utils.NewInstallError("config", err)
	}

	example, err := os.ReadFile(s.groupVarsPath() + ".example")
	if err != nil && !os.IsNotExist(err) {
		return utils.NewInstallError("config", err)
	}
	groupVars, err := ansible.RenderGroupVars(example, stackVars(&vars, adminEmail, adminPassword))
	if err != nil {
		return utils.NewInstallError("config", err)
	}
	if err := writeSecure(s.groupVarsPath(), groupVars); err != nil {
		return utils.NewInstallError("config", err)
	}

	s.logger.InstallStep("config", cfg.SSH.ElasticIP)
	return nil
}

func stackVars(v *model.StackVars, adminEmail, adminPassword string) []ansible.Var {
	vars := []ansible.Var{
		{Key: "wg_public_host", Value: v.WGPublicHost},
		{Key: "wg_port", Value: strconv.Itoa(v.WGPort), Raw: true},
		{Key: "wg_subnet", Value: v.WGSubnet},
		{Key: "wg_dns", Value: v.WGDNS},
		{Key: "jwt_secret", Value: v.JWTSecret},
		{Key: "timezone", Value: v.Timezone},
		{Key: "use_internal_tls", Value: strconv.FormatBool(*v.UseInternalTLS), Raw: true},
		{Key: "admin_email", Value: adminEmail},
		{Key: "admin_password", Value: adminPassword},
	}
	if v.S3Bucket != "" {
		vars = append(vars, ansible.Var{Key: "s3_bucket", Value: v.S3Bucket})
	}
	return vars
}

// CreateRun records a pending run with its credentials sealed. Nothing
// executes until the first log subscriber arrives.
func (s *InstallService) CreateRun(ctx context.Context, req *model.RunRequest) (string, error) {
	inventory, err := os.ReadFile(s.inventoryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrInventoryMissing
		}
		return "", utils.NewSystemError(err)
	}
	if err := validateTarget(&req.SSH); err != nil {
		return "", err
	}

	usesPEM := req.SSH.UsesPEM()
	secret := req.SSH.SSHPassword
	if usesPEM {
		secret = req.SSH.PEM
	}
	if _, err := ansible.FillInventory(string(inventory), "", secret, usesPEM); err != nil {
		return "", utils.NewBadRequestError(err.Error())
	}

	sealedInv, err := s.box.Seal(string(inventory))
	if err != nil {
		return "", utils.NewSystemError(err)
	}
	sealedSecret, err := s.box.Seal(secret)
	if err != nil {
		return "", utils.NewSystemError(err)
	}

	if err := os.MkdirAll(s.runsDir, 0o700); err != nil {
		return "", utils.NewSystemError(err)
	}
	id := uuid.NewString()
	run := &store.Run{
		ID:              id,
		Target:          req.SSH.ElasticIP,
		UsesPEM:         usesPEM,
		SealedInventory: sealedInv,
		SealedSecret:    sealedSecret,
		LogPath:         filepath.Join(s.runsDir, id+".log"),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", utils.NewSystemError(err)
	}

	s.logger.InstallStep("run-created", id)
	return id, nil
}

func (s *InstallService) lookup(ctx context.Context, id string) (*store.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}
	run, err := s.runs.Run(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// StreamRun starts the run if nobody has yet, then replays its log after
// record `after` to onEvent until the run finishes or ctx ends. A finished
// run with nothing past `after` yields ErrStreamFinished.
func (s *InstallService) StreamRun(ctx context.Context, id string, after int, onEvent func(logstream.Event) error) error {
	run, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.start(ctx, run); err != nil {
		return err
	}
	if _, err := os.Stat(run.LogPath); err != nil {
		return ErrLogNotFound
	}
	isDone := s.doneFunc(id)
	if after > 0 && isDone() {
		events, err := logstream.ReadAll(run.LogPath)
		if err != nil {
			return utils.NewSystemError(err)
		}
		if len(events) <= after {
			return ErrStreamFinished
		}
	}
	return logstream.Follow(ctx, run.LogPath, after, isDone, onEvent)
}

func (s *InstallService) start(ctx context.Context, run *store.Run) error {
	// concurrent subscribers wait here until the winner created the log and
	// registered the run, whatever status they loaded
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if run.Status != store.RunPending {
		return nil
	}

	claimed, err := s.runs.MarkRunning(ctx, run.ID)
	if err != nil || !claimed {
		return err
	}

	w, err := logstream.Create(run.LogPath)
	if err != nil {
		s.runs.FinishRun(ctx, run.ID, store.RunFailed, "", err.Error())
		return utils.NewSystemError(err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.active[run.ID] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			w.Close()
			close(done)
			s.mu.Lock()
			delete(s.active, run.ID)
			s.mu.Unlock()
		}()
		s.execute(s.ctx, run, w)
	}()
	return nil
}

// doneFunc reports whether anything can still append to the run log. Runs
// not executing in this process are treated as complete.
func (s *InstallService) doneFunc(id string) func() bool {
	s.mu.Lock()
	ch, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return func() bool { return true }
	}
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

func (s *InstallService) execute(ctx context.Context, run *store.Run, w *logstream.Writer) {
	var temps []string
	defer func() {
		for _, p := range temps {
			os.Remove(p)
		}
	}()

	fail := func(step string, err error) {
		s.logger.InstallError(step, run.ID, err)
		w.Emit(logstream.EventError, err.Error())
		if ferr := s.runs.FinishRun(context.Background(), run.ID, store.RunFailed, "", err.Error()); ferr != nil {
			s.logger.Errorf("record failed run %s: %v", run.ID, ferr)
		}
	}

	inventory, err := s.box.Unseal(run.SealedInventory)
	if err != nil {
		fail("prepare", err)
		return
	}
	secret, err := s.box.Unseal(run.SealedSecret)
	if err != nil {
		fail("prepare", err)
		return
	}

	pemPath := ""
	if run.UsesPEM {
		pemPath, err = writeTemp(s.tempDir, "autovpn_*.pem", secret)
		if err != nil {
			fail("prepare", err)
			return
		}
		temps = append(temps, pemPath)
	}
	filled, err := ansible.FillInventory(inventory, pemPath, secret, run.UsesPEM)
	if err != nil {
		fail("prepare", err)
		return
	}
	invPath, err := writeTemp(s.tempDir, "inv_run_*.ini", filled)
	if err != nil {
		fail("prepare", err)
		return
	}
	temps = append(temps, invPath)

	steps := []struct {
		name     string
		banner   string
		playbook string
	}{
		{"deploy", "Starting deploy...", s.ansible.DeployPlay},
		{"stack", "Starting stack...", s.ansible.StackPlay},
	}
	for _, step := range steps {
		s.logger.InstallStep(step.name, run.ID)
		w.Emit(logstream.EventInfo, step.banner)
		args := ansible.PlaybookCommand(invPath, filepath.Join(s.ansible.Dir, step.playbook))
		err := s.runner.Stream(ctx, s.ansible.Dir, s.ansible.PlaybookBin, args, func(line string) {
			w.Emit(logstream.EventMessage, line)
		})
		if err != nil {
			fail(step.name, fmt.Errorf("%s playbook failed: %w", step.name, err))
			return
		}
	}

	url := fmt.Sprintf("https://%s/", run.Target)
	if err := s.runs.FinishRun(context.Background(), run.ID, store.RunSucceeded, url, ""); err != nil {
		s.logger.Errorf("record finished run %s: %v", run.ID, err)
	}
	w.Emit(logstream.EventDone, url)
	s.logger.InstallSuccess(run.ID, url)
}

func (s *InstallService) ListRuns(ctx context.Context) (*model.RunsResponse, error) {
	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return nil, utils.NewSystemError(err)
	}
	resp := &model.RunsResponse{Runs: make([]model.RunSummary, 0, len(runs))}
	for _, r := range runs {
		sum := model.RunSummary{
			RunID:     r.ID,
			Target:    r.Target,
			Status:    r.Status,
			URL:       r.URL,
			Error:     r.Error,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
		if !r.FinishedAt.IsZero() {
			sum.FinishedAt = r.FinishedAt.Format(time.RFC3339)
		}
		if fi, err := os.Stat(r.LogPath); err == nil {
			sum.Size = fi.Size()
			sum.Mtime = fi.ModTime().Unix()
		}
		resp.Runs = append(resp.Runs, sum)
	}
	return resp, nil
}

// RawLog returns the run log as plain text, one record per line.
func (s *InstallService) RawLog(ctx context.Context, id string) (string, error) {
	run, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	events, err := logstream.ReadAll(run.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrLogNotFound
		}
		return "", utils.NewSystemError(err)
	}
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.PlainLine())
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func writeSecure(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

func writeTemp(dir, pattern, content string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
