package hibiki

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"git.sr.ht/~emka/hibiki/irc"
)

// SettingsStore persists small key/value settings across restarts.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// CredentialStore resolves secrets referenced from the configuration, such
// as entries in a platform keychain.
type CredentialStore interface {
	Lookup(name string) (string, error)
}

// ReconnectRegistrar schedules a wakeup after the given delay. On platforms
// with aggressive process suspension this maps to an OS alarm; the default
// sleeps.
type ReconnectRegistrar interface {
	Schedule(delay time.Duration, wake func()) (cancel func())
}

// STSStore persists strict-transport-security policies per host.
type STSStore interface {
	Get(host string) (irc.STSPolicy, bool)
	Put(host string, policy irc.STSPolicy) error
}

// ScriptHooks lets an embedder run user scripts around connection activity.
// OnEvent runs for every engine event before subscribers see it, OnDisconnect
// when a connection is lost. Implementations must not block.
type ScriptHooks interface {
	OnEvent(networkID string, ev irc.Event)
	OnDisconnect(networkID string)
}

// NopScriptHooks is the default ScriptHooks that does nothing.
type NopScriptHooks struct{}

func (NopScriptHooks) OnEvent(string, irc.Event) {}
func (NopScriptHooks) OnDisconnect(string)       {}

type memSettingsStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemSettingsStore returns an in-memory SettingsStore.
func NewMemSettingsStore() SettingsStore {
	return &memSettingsStore{m: map[string]string{}}
}

func (s *memSettingsStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *memSettingsStore) Set(key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

type envCredentialStore struct{}

// NewEnvCredentialStore resolves credentials from the environment.
func NewEnvCredentialStore() CredentialStore {
	return envCredentialStore{}
}

func (envCredentialStore) Lookup(name string) (string, error) {
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	return "", fmt.Errorf("credential %q not found in environment", name)
}

type timerRegistrar struct{}

// NewTimerRegistrar schedules wakeups with plain timers.
func NewTimerRegistrar() ReconnectRegistrar {
	return timerRegistrar{}
}

func (timerRegistrar) Schedule(delay time.Duration, wake func()) (cancel func()) {
	t := time.AfterFunc(delay, wake)
	return func() { t.Stop() }
}

// IgnoreList matches message senders against nick!user@host masks with *
// wildcards. A bare mask without ! or @ matches the nick alone.
type IgnoreList struct {
	mu    sync.Mutex
	masks []string
}

func NewIgnoreList(masks []string) *IgnoreList {
	l := &IgnoreList{}
	for _, mask := range masks {
		l.Add(mask)
	}
	return l
}

func (l *IgnoreList) Add(mask string) {
	if !strings.ContainsAny(mask, "!@") {
		mask += "!*@*"
	}
	l.mu.Lock()
	l.masks = append(l.masks, mask)
	l.mu.Unlock()
}

func (l *IgnoreList) Remove(mask string) {
	if !strings.ContainsAny(mask, "!@") {
		mask += "!*@*"
	}
	l.mu.Lock()
	masks := l.masks[:0]
	for _, m := range l.masks {
		if m != mask {
			masks = append(masks, m)
		}
	}
	l.masks = masks
	l.mu.Unlock()
}

func (l *IgnoreList) Masks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.masks...)
}

// Match reports whether the sender is ignored.
func (l *IgnoreList) Match(prefix *irc.Prefix) bool {
	if prefix == nil {
		return false
	}
	from := fmt.Sprintf("%s!%s@%s", prefix.Name, prefix.User, prefix.Host)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, mask := range l.masks {
		if matchMask(strings.ToLower(mask), strings.ToLower(from)) {
			return true
		}
	}
	return false
}

// matchMask matches s against a glob where * matches any run of characters.
func matchMask(mask, s string) bool {
	for len(mask) > 0 {
		if mask[0] == '*' {
			mask = strings.TrimLeft(mask, "*")
			if mask == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchMask(mask, s[i:]) {
					return true
				}
			}
			return false
		}
		if len(s) == 0 || mask[0] != s[0] {
			return false
		}
		mask = mask[1:]
		s = s[1:]
	}
	return len(s) == 0
}

type stsEntry struct {
	Policy  irc.STSPolicy `yaml:"policy"`
	Expires time.Time     `yaml:"expires"`
}

// FileSTSStore keeps STS policies in a YAML file. Expired policies are
// dropped on load and lookup.
type FileSTSStore struct {
	mu   sync.Mutex
	path string
	m    map[string]stsEntry
}

func NewFileSTSStore(path string) (*FileSTSStore, error) {
	s := &FileSTSStore{path: path, m: map[string]stsEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.m); err != nil {
		return nil, fmt.Errorf("error parsing sts store: %v", err)
	}
	now := time.Now()
	for host, entry := range s.m {
		if entry.Expires.Before(now) {
			delete(s.m, host)
		}
	}
	return s, nil
}

func (s *FileSTSStore) Get(host string) (irc.STSPolicy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.m[host]
	if !ok || entry.Expires.Before(time.Now()) {
		return irc.STSPolicy{}, false
	}
	return entry.Policy, true
}

// Put stores a policy; a zero duration deletes the host's policy, as
// required by the STS specification.
func (s *FileSTSStore) Put(host string, policy irc.STSPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if policy.Duration <= 0 {
		delete(s.m, host)
	} else {
		s.m[host] = stsEntry{
			Policy:  policy,
			Expires: time.Now().Add(policy.Duration),
		}
	}
	return s.save()
}

func (s *FileSTSStore) save() error {
	data, err := yaml.Marshal(s.m)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
