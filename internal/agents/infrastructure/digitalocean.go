package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/soyeahso/idpforge/internal/agents"
)

// Defaults used when neither the model nor the config picks a droplet.
const (
	DefaultRegion = "nyc3"
	DefaultSize   = "s-2vcpu-4gb"
)

var (
	ErrUnknownRegion   = errors.New("unknown region")
	ErrUnknownSize     = errors.New("unknown size")
	ErrSizeUnavailable = errors.New("size not available in region")
)

// tokenSource hands godo a static API token.
type tokenSource struct {
	accessToken string
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.accessToken}, nil
}

// DigitalOcean validates droplet targets against the account catalogue.
type DigitalOcean struct {
	client *godo.Client
	region string
	size   string
}

// NewDigitalOcean creates a planner authenticated with token. Empty region
// and size fall back to DefaultRegion and DefaultSize.
func NewDigitalOcean(token, region, size string, opts ...godo.ClientOpt) (*DigitalOcean, error) {
	if token == "" {
		return nil, errors.New("digitalocean: token is required")
	}
	hc := oauth2.NewClient(context.Background(), &tokenSource{accessToken: token})
	return newDigitalOcean(hc, region, size, opts...)
}

func newDigitalOcean(hc *http.Client, region, size string, opts ...godo.ClientOpt) (*DigitalOcean, error) {
	client, err := godo.New(hc, opts...)
	if err != nil {
		return nil, fmt.Errorf("digitalocean: %w", err)
	}
	if region == "" {
		region = DefaultRegion
	}
	if size == "" {
		size = DefaultSize
	}
	return &DigitalOcean{client: client, region: region, size: size}, nil
}

// ValidateTarget checks that region exists, size exists and the size can be
// created in the region.
func (d *DigitalOcean) ValidateTarget(ctx context.Context, region, size string) (*agents.DropletTarget, error) {
	if region == "" {
		region = d.region
	}
	if size == "" {
		size = d.size
	}

	regions, err := d.regions(ctx)
	if err != nil {
		return nil, err
	}
	var reg *godo.Region
	for i := range regions {
		if regions[i].Slug == region {
			reg = &regions[i]
			break
		}
	}
	if reg == nil || !reg.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}

	sizes, err := d.sizes(ctx)
	if err != nil {
		return nil, err
	}
	var sz *godo.Size
	for i := range sizes {
		if sizes[i].Slug == size {
			sz = &sizes[i]
			break
		}
	}
	if sz == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSize, size)
	}
	if !sz.Available || !contains(sz.Regions, region) {
		return nil, fmt.Errorf("%w: %s in %s", ErrSizeUnavailable, size, region)
	}

	return &agents.DropletTarget{
		Region:      reg.Slug,
		RegionName:  reg.Name,
		Size:        sz.Slug,
		VCPUs:       sz.Vcpus,
		MemoryMB:    sz.Memory,
		DiskGB:      sz.Disk,
		PriceHourly: sz.PriceHourly,
		PriceMonth:  sz.PriceMonthly,
		Features:    reg.Features,
	}, nil
}

func (d *DigitalOcean) regions(ctx context.Context) ([]godo.Region, error) {
	opt := &godo.ListOptions{PerPage: 200}
	var all []godo.Region
	for {
		page, resp, err := d.client.Regions.List(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("listing regions: %w", err)
		}
		all = append(all, page...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return all, nil
		}
		cur, err := resp.Links.CurrentPage()
		if err != nil {
			return all, nil
		}
		opt.Page = cur + 1
	}
}

func (d *DigitalOcean) sizes(ctx context.Context) ([]godo.Size, error) {
	opt := &godo.ListOptions{PerPage: 200}
	var all []godo.Size
	for {
		page, resp, err := d.client.Sizes.List(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("listing sizes: %w", err)
		}
		all = append(all, page...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return all, nil
		}
		cur, err := resp.Links.CurrentPage()
		if err != nil {
			return all, nil
		}
		opt.Page = cur + 1
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
