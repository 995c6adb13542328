package tenant

import (
	"errors"
	"fmt"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"gorm.io/gorm"
)

var ErrUnknownToken = errors.New("unknown webhook token")

// Context is the resolved tenant scope of one webhook call.
type Context struct {
	Tenant  *models.Tenant
	Channel *models.Channel
}

// Resolver maps the opaque webhook token in an inbound URL to its
// channel and owning tenant.
type Resolver struct {
	tenants  repositories.TenantRepo
	channels repositories.ChannelRepo
}

func NewResolver(tenants repositories.TenantRepo, channels repositories.ChannelRepo) *Resolver {
	return &Resolver{tenants: tenants, channels: channels}
}

// ResolveToken looks up an active channel by webhook token, then its
// tenant. Unknown or disabled tokens yield ErrUnknownToken so handlers
// can answer 400 without leaking which tokens exist.
func (r *Resolver) ResolveToken(token string) (*Context, error) {
	if token == "" {
		return nil, ErrUnknownToken
	}

	channel, err := r.channels.GetByWebhookToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, fmt.Errorf("failed to resolve channel: %w", err)
	}

	tenant, err := r.tenants.GetByID(channel.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	return &Context{Tenant: tenant, Channel: channel}, nil
}
