// Package providerfake is a scriptable oauth.Provider for tests.
package providerfake

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/Lipoic/Lipoic-Server/oauth"
	"golang.org/x/oauth2"
)

var _ oauth.Provider = (*Provider)(nil)

// ErrInvalidCode is returned by Exchange for codes that were not registered.
var ErrInvalidCode = errors.New("invalid_grant")

// Provider exchanges registered codes for fixed identities.
type Provider struct {
	name  string
	lock  sync.Mutex
	codes map[string]*oauth.UserInfo

	// ExchangeErr and UserInfoErr, when set, fail the respective step.
	ExchangeErr error
	UserInfoErr error
	// Block and BlockUserInfo make Exchange or FetchUserInfo wait for the
	// context to end.
	Block         bool
	BlockUserInfo bool

	exchanges int
}

func New(name string) *Provider {
	return &Provider{name: name, codes: make(map[string]*oauth.UserInfo)}
}

// AddCode makes code exchangeable for info.
func (p *Provider) AddCode(code string, info oauth.UserInfo) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.codes[code] = &info
}

// Exchanges reports how many code exchanges reached the provider.
func (p *Provider) Exchanges() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.exchanges
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}}
	return "https://" + p.name + ".example/auth?" + q.Encode()
}

func (p *Provider) Exchange(ctx context.Context, code, _ string) (*oauth2.Token, error) {
	p.lock.Lock()
	p.exchanges++
	block, exchangeErr := p.Block, p.ExchangeErr
	_, ok := p.codes[code]
	p.lock.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if exchangeErr != nil {
		return nil, exchangeErr
	}
	if !ok {
		return nil, ErrInvalidCode
	}
	return &oauth2.Token{AccessToken: code}, nil
}

func (p *Provider) FetchUserInfo(ctx context.Context, tok *oauth2.Token) (*oauth.UserInfo, error) {
	p.lock.Lock()
	block := p.BlockUserInfo
	p.lock.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.UserInfoErr != nil {
		return nil, p.UserInfoErr
	}
	info, ok := p.codes[tok.AccessToken]
	if !ok {
		return nil, oauth.ErrFetchFailed
	}
	c := *info
	return &c, nil
}
