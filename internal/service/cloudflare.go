package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/cloudflare-go"

	"flareddns/internal/model"
)

const zonesPerPage = 50

type CloudflareProvider struct {
	api *cloudflare.API
}

func NewCloudflareProvider(token string, options ...cloudflare.Option) (*CloudflareProvider, error) {
	api, err := cloudflare.NewWithAPIToken(token, options...)
	if err != nil {
		return nil, err
	}
	return &CloudflareProvider{api: api}, nil
}

// CloudflareFactory returns a ProviderFactory that applies options to every
// client it builds.
func CloudflareFactory(options ...cloudflare.Option) ProviderFactory {
	return func(_ context.Context, token string) (Provider, error) {
		return NewCloudflareProvider(token, options...)
	}
}

func (p *CloudflareProvider) VerifyToken(ctx context.Context) error {
	body, err := p.api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	if body.Status != "active" {
		return fmt.Errorf("%w: status %q", ErrInvalidToken, body.Status)
	}
	return nil
}

func (p *CloudflareProvider) ListZones(ctx context.Context) ([]model.Zone, error) {
	var zones []model.Zone
	for page := 1; ; page++ {
		res, err := p.api.ListZonesContext(ctx, cloudflare.WithPagination(cloudflare.PaginationOptions{
			Page:    page,
			PerPage: zonesPerPage,
		}))
		if err != nil {
			return nil, fmt.Errorf("list zones: %w", err)
		}
		for _, z := range res.Result {
			zones = append(zones, model.Zone{
				ID:     z.ID,
				Name:   normalizeName(z.Name),
				Status: z.Status,
			})
		}
		if page >= res.ResultInfo.TotalPages || len(res.Result) == 0 {
			break
		}
	}
	return zones, nil
}

func (p *CloudflareProvider) ListRecords(ctx context.Context, zoneID string, kind model.RecordType) ([]model.RemoteRecord, error) {
	records, _, err := p.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: string(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}

	result := make([]model.RemoteRecord, 0, len(records))
	for _, r := range records {
		result = append(result, fromCloudflare(r))
	}
	return result, nil
}

func (p *CloudflareProvider) CreateRecord(ctx context.Context, zoneID string, fields model.RecordFields) (model.RemoteRecord, error) {
	rec, err := p.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.CreateDNSRecordParams{
		Type:    string(fields.Type),
		Name:    fields.Name,
		Content: fields.Content,
		TTL:     fields.TTL,
		Proxied: cloudflare.BoolPtr(fields.Proxied),
	})
	if err != nil {
		return model.RemoteRecord{}, fmt.Errorf("create record %s: %w", fields.Name, err)
	}
	return fromCloudflare(rec), nil
}

func (p *CloudflareProvider) UpdateRecord(ctx context.Context, zoneID, recordID string, fields model.RecordFields) (model.RemoteRecord, error) {
	rec, err := p.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Type:    string(fields.Type),
		Name:    fields.Name,
		Content: fields.Content,
		TTL:     fields.TTL,
		Proxied: cloudflare.BoolPtr(fields.Proxied),
	})
	if err != nil {
		return model.RemoteRecord{}, fmt.Errorf("update record %s: %w", recordID, cloudflareErr(err))
	}
	return fromCloudflare(rec), nil
}

func (p *CloudflareProvider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if err := p.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), recordID); err != nil {
		return fmt.Errorf("delete record %s: %w", recordID, cloudflareErr(err))
	}
	return nil
}

func fromCloudflare(r cloudflare.DNSRecord) model.RemoteRecord {
	proxied := false
	if r.Proxied != nil {
		proxied = *r.Proxied
	}
	return model.RemoteRecord{
		ID:      r.ID,
		Name:    normalizeName(r.Name),
		Type:    model.RecordType(r.Type),
		Content: r.Content,
		Proxied: proxied,
		TTL:     r.TTL,
	}
}

// cloudflareErr maps a 404 onto ErrRecordNotFound and keeps the original
// error in the chain.
func cloudflareErr(err error) error {
	var notFound *cloudflare.NotFoundError
	if errors.As(err, &notFound) {
		return errors.Join(ErrRecordNotFound, err)
	}
	return err
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
