package config

// StaticProvider serves one fixed Settings value and never publishes updates.
// It backs the -settings-json development mode.
type StaticProvider struct {
	settings Settings
	updates  chan Settings
}

// NewStaticProvider returns a provider for s.
func NewStaticProvider(s Settings) *StaticProvider {
	return &StaticProvider{settings: s, updates: make(chan Settings)}
}

// Current returns the settings the provider was created with.
func (p *StaticProvider) Current() Settings { return p.settings }

// Updates returns a channel that never delivers.
func (p *StaticProvider) Updates() <-chan Settings { return p.updates }
