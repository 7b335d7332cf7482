package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"flareddns/internal/model"
)

// Route 53 rejects TTLs below this, so "automatic" (1) is raised to it.
const route53MinTTL = 60

// Route53Provider talks to Route 53. The api token has the form
// ACCESS_KEY_ID:SECRET_ACCESS_KEY. Route 53 record sets have no id, so
// record ids are "<name>/<type>".
type Route53Provider struct {
	client *route53.Client
}

func NewRoute53Provider(ctx context.Context, token, region string, optFns ...func(*route53.Options)) (*Route53Provider, error) {
	keyID, secret, ok := strings.Cut(token, ":")
	if !ok || keyID == "" || secret == "" {
		return nil, fmt.Errorf("%w: expected ACCESS_KEY_ID:SECRET_ACCESS_KEY", ErrInvalidToken)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Route53Provider{client: route53.NewFromConfig(awsCfg, optFns...)}, nil
}

func Route53Factory(region string, optFns ...func(*route53.Options)) ProviderFactory {
	return func(ctx context.Context, token string) (Provider, error) {
		return NewRoute53Provider(ctx, token, region, optFns...)
	}
}

func (p *Route53Provider) VerifyToken(ctx context.Context) error {
	_, err := p.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{MaxItems: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

func (p *Route53Provider) ListZones(ctx context.Context) ([]model.Zone, error) {
	var zones []model.Zone
	var marker *string

	for {
		result, err := p.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}

		for _, z := range result.HostedZones {
			status := "active"
			if z.Config != nil && z.Config.PrivateZone {
				status = "private"
			}
			zones = append(zones, model.Zone{
				ID:     extractZoneID(aws.ToString(z.Id)),
				Name:   normalizeName(aws.ToString(z.Name)),
				Status: status,
			})
		}

		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	return zones, nil
}

func (p *Route53Provider) ListRecords(ctx context.Context, zoneID string, kind model.RecordType) ([]model.RemoteRecord, error) {
	var records []model.RemoteRecord
	var nextName *string
	var nextType types.RRType

	for {
		input := &route53.ListResourceRecordSetsInput{
			HostedZoneId: aws.String(zoneID),
		}
		if nextName != nil {
			input.StartRecordName = nextName
			input.StartRecordType = nextType
		}

		result, err := p.client.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", kind, err)
		}

		for _, rrs := range result.ResourceRecordSets {
			if string(rrs.Type) != string(kind) || rrs.AliasTarget != nil {
				continue
			}
			records = append(records, fromRecordSet(rrs))
		}

		if !result.IsTruncated {
			break
		}
		nextName = result.NextRecordName
		nextType = result.NextRecordType
	}
	return records, nil
}

func (p *Route53Provider) CreateRecord(ctx context.Context, zoneID string, fields model.RecordFields) (model.RemoteRecord, error) {
	if err := p.change(ctx, zoneID, types.ChangeActionCreate, fields); err != nil {
		return model.RemoteRecord{}, fmt.Errorf("create record %s: %w", fields.Name, err)
	}
	return remoteFromFields(fields), nil
}

func (p *Route53Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, fields model.RecordFields) (model.RemoteRecord, error) {
	name, kind, err := splitRecordID(recordID)
	if err != nil {
		return model.RemoteRecord{}, err
	}
	fields.Name = name
	fields.Type = kind
	if err := p.change(ctx, zoneID, types.ChangeActionUpsert, fields); err != nil {
		return model.RemoteRecord{}, fmt.Errorf("update record %s: %w", recordID, err)
	}
	return remoteFromFields(fields), nil
}

func (p *Route53Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	name, kind, err := splitRecordID(recordID)
	if err != nil {
		return err
	}

	// DELETE has to echo the current record set exactly.
	result, err := p.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(kind),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("lookup record %s: %w", recordID, err)
	}
	if len(result.ResourceRecordSets) == 0 {
		return fmt.Errorf("delete record %s: %w", recordID, ErrRecordNotFound)
	}
	current := result.ResourceRecordSets[0]
	if normalizeName(aws.ToString(current.Name)) != name || string(current.Type) != string(kind) {
		return fmt.Errorf("delete record %s: %w", recordID, ErrRecordNotFound)
	}

	_, err = p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Deleted via flareddns"),
			Changes: []types.Change{{Action: types.ChangeActionDelete, ResourceRecordSet: &current}},
		},
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", recordID, err)
	}
	return nil
}

func (p *Route53Provider) change(ctx context.Context, zoneID string, action types.ChangeAction, fields model.RecordFields) error {
	ttl := int64(fields.TTL)
	if ttl < route53MinTTL {
		ttl = route53MinTTL
	}

	_, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Changed via flareddns"),
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(fields.Name),
						Type: types.RRType(fields.Type),
						TTL:  aws.Int64(ttl),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(fields.Content)},
						},
					},
				},
			},
		},
	})
	return err
}

func fromRecordSet(rrs types.ResourceRecordSet) model.RemoteRecord {
	name := normalizeName(aws.ToString(rrs.Name))
	rec := model.RemoteRecord{
		ID:   recordID(name, model.RecordType(rrs.Type)),
		Name: name,
		Type: model.RecordType(rrs.Type),
		TTL:  int(aws.ToInt64(rrs.TTL)),
	}
	if len(rrs.ResourceRecords) > 0 {
		rec.Content = aws.ToString(rrs.ResourceRecords[0].Value)
	}
	return rec
}

func remoteFromFields(fields model.RecordFields) model.RemoteRecord {
	ttl := fields.TTL
	if ttl < route53MinTTL {
		ttl = route53MinTTL
	}
	name := normalizeName(fields.Name)
	return model.RemoteRecord{
		ID:      recordID(name, fields.Type),
		Name:    name,
		Type:    fields.Type,
		Content: fields.Content,
		TTL:     ttl,
	}
}

func recordID(name string, kind model.RecordType) string {
	return name + "/" + string(kind)
}

func splitRecordID(id string) (string, model.RecordType, error) {
	name, kind, ok := strings.Cut(id, "/")
	if !ok || name == "" || kind == "" {
		return "", "", errors.New("malformed route53 record id " + id)
	}
	return name, model.RecordType(kind), nil
}

func extractZoneID(fullID string) string {
	parts := strings.Split(fullID, "/")
	return parts[len(parts)-1]
}
