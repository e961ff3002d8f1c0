package services

import (
	"context"

	"github.com/netsweep/network-survey-agent/internal/models"
	"github.com/netsweep/network-survey-agent/internal/store"
)

type HostService struct {
	store *store.Store
}

func NewHostService(st *store.Store) *HostService {
	return &HostService{store: st}
}

type HostListParams struct {
	OSClasses []string
	Subnets   []string
	Reachable *bool
	SurveyID  string
	Limit     uint64
	Offset    uint64
}

type HostListResult struct {
	Hosts []models.Host
	Total int
}

func (s *HostService) List(ctx context.Context, params HostListParams) (*HostListResult, error) {
	opts := s.buildListOptions(params)

	hosts, err := s.store.Host().List(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// Get total count without pagination
	countOpts := s.buildListOptions(HostListParams{
		OSClasses: params.OSClasses,
		Subnets:   params.Subnets,
		Reachable: params.Reachable,
		SurveyID:  params.SurveyID,
	})
	total, err := s.store.Host().Count(ctx, countOpts...)
	if err != nil {
		return nil, err
	}

	return &HostListResult{
		Hosts: hosts,
		Total: total,
	}, nil
}

func (s *HostService) Get(ctx context.Context, address string) (*models.Host, error) {
	return s.store.Host().Get(ctx, address)
}

func (s *HostService) buildListOptions(params HostListParams) []store.ListOption {
	var opts []store.ListOption

	if len(params.OSClasses) > 0 {
		opts = append(opts, store.ByOSClasses(params.OSClasses...))
	}
	if len(params.Subnets) > 0 {
		opts = append(opts, store.BySubnets(params.Subnets...))
	}
	if params.Reachable != nil {
		opts = append(opts, store.ByReachable(*params.Reachable))
	}
	if params.SurveyID != "" {
		opts = append(opts, store.BySurvey(params.SurveyID))
	}

	if params.Limit > 0 {
		opts = append(opts, store.WithLimit(params.Limit))
	}
	if params.Offset > 0 {
		opts = append(opts, store.WithOffset(params.Offset))
	}

	return opts
}
