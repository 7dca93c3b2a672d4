package destination

import (
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/transport"
)

// Kind is one of the supported backend variants.
type Kind int

const (
	KindLog Kind = iota
	KindMail
	KindCloudStorage
	KindChatBot
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "Log"
	case KindMail:
		return "Mail"
	case KindCloudStorage:
		return "CloudStorage"
	case KindChatBot:
		return "ChatBot"
	default:
		return "unknown"
	}
}

// Builder constructs the transport for one backend kind.
type Builder func(cfg config.DestinationsConfig, log logger.ILogger) (transport.Transport, error)

type variant struct {
	kind   Kind
	policy func(config.DestinationsConfig) config.Policy
	build  Builder
	async  bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBuilder replaces the transport builder of kind.
func WithBuilder(kind Kind, b Builder) RegistryOption {
	return func(r *Registry) {
		for i := range r.variants {
			if r.variants[i].kind == kind {
				r.variants[i].build = b
			}
		}
	}
}

// WithDestinationOptions applies opts to every constructed destination.
func WithDestinationOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// Registry enumerates the fixed set of backend variants in registry order:
// Log, Mail, CloudStorage, ChatBot.
type Registry struct {
	variants []variant
	opts     []Option
	base     logger.ILogger
	log      logger.ILogger
}

// NewRegistry creates a registry with the built-in transports.
func NewRegistry(log logger.ILogger, opts ...RegistryOption) *Registry {
	r := &Registry{
		variants: []variant{
			{
				kind:   KindLog,
				policy: func(c config.DestinationsConfig) config.Policy { return c.Log.Policy() },
				build: func(c config.DestinationsConfig, log logger.ILogger) (transport.Transport, error) {
					return transport.NewLog(c.Log, log), nil
				},
			},
			{
				kind:   KindMail,
				policy: func(c config.DestinationsConfig) config.Policy { return c.Mail.Policy() },
				build: func(c config.DestinationsConfig, log logger.ILogger) (transport.Transport, error) {
					return transport.NewMail(c.Mail, log)
				},
				async: true,
			},
			{
				kind:   KindCloudStorage,
				policy: func(c config.DestinationsConfig) config.Policy { return c.CloudStorage.Policy() },
				build: func(c config.DestinationsConfig, log logger.ILogger) (transport.Transport, error) {
					return transport.NewCloudStorage(c.CloudStorage, log)
				},
			},
			{
				kind:   KindChatBot,
				policy: func(c config.DestinationsConfig) config.Policy { return c.ChatBot.Policy() },
				build: func(c config.DestinationsConfig, log logger.ILogger) (transport.Transport, error) {
					return transport.NewChatBot(c.ChatBot, log)
				},
			},
		},
		base: log,
		log:  log.SubLogger("Registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kinds returns the supported variants in registry order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, len(r.variants))
	for i, v := range r.variants {
		kinds[i] = v.kind
	}
	return kinds
}

// Load constructs one uninitialized destination per active kind. Kinds whose
// transport cannot be built are logged and omitted.
func (r *Registry) Load(cfg config.DestinationsConfig) []*Destination {
	var out []*Destination
	for _, v := range r.variants {
		p := v.policy(cfg)
		if !p.Active {
			r.log.Debugf("destination inactive: kind=%s", v.kind)
			continue
		}

		t, err := v.build(cfg, r.base)
		if err != nil {
			r.log.Errorf("destination not registered: kind=%s, error=%v", v.kind, err)
			continue
		}

		opts := r.opts
		if v.async {
			opts = append(append([]Option{}, opts...), WithAsyncMessages())
		}
		out = append(out, New(t, p, r.base, opts...))
		r.log.Infof("destination registered: kind=%s", v.kind)
	}
	return out
}
