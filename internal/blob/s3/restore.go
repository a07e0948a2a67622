package s3blob

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// opportunityArchivePrefix is the key prefix under which ArchiveOpportunities
// writes its monthly JSONL files.
const opportunityArchivePrefix = "archive/opportunities/"

// Restorer reads archived records back out of blob storage. It is the read
// side of ArchiveImpl: same key scheme, same JSONL layout.
type Restorer struct {
	reader domain.BlobReader
}

// NewRestorer creates a Restorer over the given blob reader.
func NewRestorer(reader domain.BlobReader) *Restorer {
	return &Restorer{reader: reader}
}

// RestoreOpportunities loads every archived opportunity file and returns the
// decoded records, oldest archive file first. A malformed line fails the
// whole restore rather than silently dropping history.
func (r *Restorer) RestoreOpportunities(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	infos, err := r.reader.List(ctx, opportunityArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: restore opportunities list: %w", err)
	}
	// Archive keys are year-month partitioned, so lexical order is
	// chronological order.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })

	var opps []domain.ArbitrageOpportunity
	for _, info := range infos {
		batch, err := r.restoreFile(ctx, info.Path)
		if err != nil {
			return nil, err
		}
		opps = append(opps, batch...)
	}
	return opps, nil
}

func (r *Restorer) restoreFile(ctx context.Context, path string) ([]domain.ArbitrageOpportunity, error) {
	body, err := r.reader.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: restore %s: %w", path, err)
	}
	defer body.Close()

	var opps []domain.ArbitrageOpportunity
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var opp domain.ArbitrageOpportunity
		if err := json.Unmarshal([]byte(line), &opp); err != nil {
			return nil, fmt.Errorf("s3blob: restore %s: decode: %w", path, err)
		}
		opps = append(opps, opp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: restore %s: read: %w", path, err)
	}
	return opps, nil
}
