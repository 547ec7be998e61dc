// Package platform selects and builds the capability adapters of one
// collaboration backend.
package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/infrastructure/feishu"
	"GeoTool/internal/infrastructure/notion"
	"GeoTool/internal/ports"
	"GeoTool/internal/retry"
)

// Capabilities is the full adapter set of one platform.
type Capabilities struct {
	Platform  domain.Platform
	Projects  ports.ProjectManager
	Documents ports.DocumentGenerator
	Notifier  ports.Notifier
	Files     ports.FileManager
}

// Builder holds one constructor per capability.
type Builder struct {
	ProjectManager    func(f *Factory) (ports.ProjectManager, error)
	DocumentGenerator func(f *Factory) (ports.DocumentGenerator, error)
	Notifier          func(f *Factory) (ports.Notifier, error)
	FileManager       func(f *Factory) (ports.FileManager, error)
}

// Factory builds adapters from configuration. Construction never performs
// network I/O.
type Factory struct {
	cfg      config.PlatformConfig
	executor *retry.Executor
	policy   retry.Policy
	logger   *slog.Logger

	mu       sync.RWMutex
	builders map[domain.Platform]Builder
	feishu   map[string]*feishu.Client
	notion   map[string]*notion.Client
}

// NewFactory registers the Feishu and Notion builders. Backend calls retry
// transient failures under policy.
func NewFactory(cfg config.PlatformConfig, executor *retry.Executor, policy retry.Policy, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if executor == nil {
		executor = retry.NewExecutor(logger)
	}
	f := &Factory{
		cfg:      cfg,
		executor: executor,
		policy:   policy,
		logger:   logger,
		builders: make(map[domain.Platform]Builder),
		feishu:   make(map[string]*feishu.Client),
		notion:   make(map[string]*notion.Client),
	}
	f.Register(domain.PlatformFeishu, feishuBuilder())
	f.Register(domain.PlatformNotion, notionBuilder())
	return f
}

// Register adds or replaces the builder of a platform.
func (f *Factory) Register(p domain.Platform, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[p] = b
}

func (f *Factory) builder(p domain.Platform) (Builder, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.builders[p]
	if !ok {
		return Builder{}, &domain.ConfigurationError{Field: "platform", Reason: fmt.Sprintf("unsupported platform %q", p)}
	}
	return b, nil
}

// NewProjectManager builds the project capability of p.
func (f *Factory) NewProjectManager(p domain.Platform) (ports.ProjectManager, error) {
	b, err := f.builder(p)
	if err != nil {
		return nil, err
	}
	return b.ProjectManager(f)
}

// NewDocumentGenerator builds the document capability of p.
func (f *Factory) NewDocumentGenerator(p domain.Platform) (ports.DocumentGenerator, error) {
	b, err := f.builder(p)
	if err != nil {
		return nil, err
	}
	return b.DocumentGenerator(f)
}

// NewNotifier builds the notifier of p.
func (f *Factory) NewNotifier(p domain.Platform) (ports.Notifier, error) {
	b, err := f.builder(p)
	if err != nil {
		return nil, err
	}
	return b.Notifier(f)
}

// NewFileManager builds the file capability of p.
func (f *Factory) NewFileManager(p domain.Platform) (ports.FileManager, error) {
	b, err := f.builder(p)
	if err != nil {
		return nil, err
	}
	return b.FileManager(f)
}

// Build constructs all four capabilities or none.
func (f *Factory) Build(p domain.Platform) (Capabilities, error) {
	caps := Capabilities{Platform: p}
	var err error
	if caps.Projects, err = f.NewProjectManager(p); err != nil {
		return Capabilities{}, err
	}
	if caps.Documents, err = f.NewDocumentGenerator(p); err != nil {
		return Capabilities{}, err
	}
	if caps.Notifier, err = f.NewNotifier(p); err != nil {
		return Capabilities{}, err
	}
	if caps.Files, err = f.NewFileManager(p); err != nil {
		return Capabilities{}, err
	}
	f.logger.Info("platform adapters built", "platform", p)
	return caps, nil
}

// feishuClient returns the client shared by every adapter of one app so the
// tenant token is acquired once.
func (f *Factory) feishuClient() (*feishu.Client, error) {
	cfg := f.cfg.Feishu
	if cfg.AppID == "" {
		return nil, &domain.ConfigurationError{Field: "platform.feishu.appId", Reason: "required"}
	}
	if cfg.AppSecret == "" {
		return nil, &domain.ConfigurationError{Field: "platform.feishu.appSecret", Reason: "required"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.feishu[cfg.AppID]; ok {
		return c, nil
	}
	c := feishu.NewClient(cfg, f.logger.With("component", "feishu")).WithRetry(f.executor, f.policy)
	f.feishu[cfg.AppID] = c
	return c, nil
}

func (f *Factory) notionClient() (*notion.Client, error) {
	cfg := f.cfg.Notion
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Field: "platform.notion.apiKey", Reason: "required"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.notion[cfg.APIKey]; ok {
		return c, nil
	}
	c := notion.NewClient(cfg, f.logger.With("component", "notion")).WithRetry(f.executor, f.policy)
	f.notion[cfg.APIKey] = c
	return c, nil
}

func feishuBuilder() Builder {
	return Builder{
		ProjectManager: func(f *Factory) (ports.ProjectManager, error) {
			c, err := f.feishuClient()
			if err != nil {
				return nil, err
			}
			return feishu.NewProjectManager(c, f.cfg.Feishu.Bitable, f.logger.With("component", "feishu_projects")), nil
		},
		DocumentGenerator: func(f *Factory) (ports.DocumentGenerator, error) {
			c, err := f.feishuClient()
			if err != nil {
				return nil, err
			}
			return feishu.NewDocumentGenerator(c, f.cfg.Feishu.Drive.RootFolderToken, f.logger.With("component", "feishu_documents")).
				WithShareUsers(f.cfg.Feishu.ShareUsers), nil
		},
		Notifier: func(f *Factory) (ports.Notifier, error) {
			return feishu.NewNotifier(f.cfg.Feishu.WebhookURL, f.logger.With("component", "feishu_notifier")), nil
		},
		FileManager: func(f *Factory) (ports.FileManager, error) {
			c, err := f.feishuClient()
			if err != nil {
				return nil, err
			}
			return feishu.NewFileManager(c, f.cfg.Feishu.Drive.RootFolderToken, f.logger.With("component", "feishu_files")), nil
		},
	}
}

func notionBuilder() Builder {
	return Builder{
		ProjectManager: func(f *Factory) (ports.ProjectManager, error) {
			c, err := f.notionClient()
			if err != nil {
				return nil, err
			}
			return notion.NewProjectManager(c, f.cfg.Notion.Databases, f.logger.With("component", "notion_projects")), nil
		},
		DocumentGenerator: func(f *Factory) (ports.DocumentGenerator, error) {
			c, err := f.notionClient()
			if err != nil {
				return nil, err
			}
			return notion.NewDocumentGenerator(c, f.cfg.Notion.ParentPageID, f.logger.With("component", "notion_documents")), nil
		},
		Notifier: func(f *Factory) (ports.Notifier, error) {
			return notion.NewNotifier(f.cfg.Notion.WebhookURL, f.logger.With("component", "notion_notifier")), nil
		},
		FileManager: func(f *Factory) (ports.FileManager, error) {
			c, err := f.notionClient()
			if err != nil {
				return nil, err
			}
			return notion.NewFileManager(c, f.cfg.Notion.ParentPageID, f.logger.With("component", "notion_files")), nil
		},
	}
}
