// Package sources picks playable variants out of the upstream source lists.
package sources

import (
	"context"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/ani/ani-gogo/types"
)

// Sentinel qualities are upstream fallbacks, never offered as a choice.
const (
	QualityDefault = "default"
	QualityBackup  = "backup"
)

// VariantFetcher is the slice of fetcher.Fetcher the selector needs.
type VariantFetcher interface {
	Sources(ctx context.Context, episodeId string) ([]types.VideoVariant, error)
}

func IsSentinel(quality string) bool {
	return quality == QualityDefault || quality == QualityBackup
}

// SelectVariants drops sentinel entries and keeps upstream order.
// The result is never nil.
func SelectVariants(raw []types.VideoVariant) []types.VideoVariant {
	filtered := lo.Filter(raw, func(v types.VideoVariant, _ int) bool {
		return !IsSentinel(v.Quality)
	})
	if filtered == nil {
		return []types.VideoVariant{}
	}
	return filtered
}

// PickDefault is the first variant in upstream order. Upstream is assumed,
// not guaranteed, to list its preferred quality first.
func PickDefault(variants []types.VideoVariant) mo.Option[types.VideoVariant] {
	if len(variants) == 0 {
		return mo.None[types.VideoVariant]()
	}
	return mo.Some(variants[0])
}

// SelectByQuality is an exact, case sensitive match on the quality label.
func SelectByQuality(variants []types.VideoVariant, quality string) mo.Option[types.VideoVariant] {
	v, ok := lo.Find(variants, func(v types.VideoVariant) bool {
		return v.Quality == quality
	})
	if !ok {
		return mo.None[types.VideoVariant]()
	}
	return mo.Some(v)
}

// Qualities lists the labels of variants, in order.
func Qualities(variants []types.VideoVariant) []string {
	return lo.Map(variants, func(v types.VideoVariant, _ int) string {
		return v.Quality
	})
}
