package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dl-alexandre/docdr/internal/utils"
)

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccountKey checks that data is a usable service-account key
func ParseServiceAccountKey(data []byte) (*ServiceAccountKey, error) {
	invalid := func(msg string) error {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid, msg).Build())
	}
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, invalid(fmt.Sprintf("failed to parse service account key: %v", err))
	}
	if key.Type != "service_account" {
		return nil, invalid(fmt.Sprintf("invalid service account key type: %q", key.Type))
	}
	if key.ClientEmail == "" {
		return nil, invalid("missing client_email in service account key")
	}
	if key.PrivateKey == "" {
		return nil, invalid("missing private_key in service account key")
	}
	return &key, nil
}

// Delegation hands out token sources for a service account acting as
// organisation users. Token sources are cached per subject and scope set.
type Delegation struct {
	keyJSON []byte
	email   string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewDelegation parses keyJSON and prepares delegated credentials
func NewDelegation(keyJSON []byte) (*Delegation, error) {
	key, err := ParseServiceAccountKey(keyJSON)
	if err != nil {
		return nil, err
	}
	return &Delegation{
		keyJSON: keyJSON,
		email:   key.ClientEmail,
		sources: make(map[string]oauth2.TokenSource),
	}, nil
}

// ServiceAccountEmail is the client email of the key
func (d *Delegation) ServiceAccountEmail() string {
	return d.email
}

// TokenSource returns tokens for subject with scopes. An empty subject acts
// as the service account itself.
func (d *Delegation) TokenSource(ctx context.Context, subject string, scopes []string) (oauth2.TokenSource, error) {
	if subject != "" && !strings.Contains(subject, "@") {
		return nil, fmt.Errorf("impersonated subject must be an email address, got %q", subject)
	}
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)
	cacheKey := subject + "|" + strings.Join(sorted, " ")

	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.sources[cacheKey]; ok {
		return ts, nil
	}

	// the token source outlives the call that created it
	creds, err := google.CredentialsFromJSONWithParams(context.WithoutCancel(ctx), d.keyJSON, google.CredentialsParams{
		Scopes:  sorted,
		Subject: subject,
	})
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			"failed to load service account credentials").Build(), err)
	}
	d.sources[cacheKey] = creds.TokenSource
	return creds.TokenSource, nil
}
