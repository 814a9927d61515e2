package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Archive entry patterns. Matching is by base name so archives produced on
// different platforms (with or without a leading directory) all work.
var (
	zonesPattern         = regexp.MustCompile(`(^|/)zones\.[tc]sv$`)
	intersectionsPattern = regexp.MustCompile(`(^|/)intersections\.[tc]sv$`)
	linksPattern         = regexp.MustCompile(`(^|/)links\.[tc]sv$`)
	functionsPattern     = regexp.MustCompile(`(^|/)functions\.[tc]sv$`)
	publicTransitPattern = regexp.MustCompile(`(^|/)public_transit\.[tc]sv$`)
	travelerTypesPattern = regexp.MustCompile(`(^|/)traveler_types\.[tc]sv$`)
	matrixPattern        = regexp.MustCompile(`(^|/)matrix_([0-9]+)\.[tc]sv$`)
	pricingPattern       = regexp.MustCompile(`(^|/)pricings\.[tc]sv$`)
)

// ImportArchive runs a whole-scenario import from a zip archive in fixed
// dependency order: zones, intersections, links, congestion functions,
// public transit, traveler types, OD matrices, pricing. Matrix files carry
// the external id of their traveler type in the filename (matrix_<id>).
//
// Kinds are fault-isolated: a missing file is skipped and a failed kind is
// reported in the returned Report without rolling back completed kinds.
// The returned error covers only archive-level failures.
func (im *Importer) ImportArchive(ctx context.Context, simulationID int64, archivePath string) (*Report, error) {
	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer archive.Close()

	report := &Report{SimulationID: simulationID}

	steps := []struct {
		pattern *regexp.Regexp
		run     func(ctx context.Context, file io.Reader, name string) KindResult
	}{
		{zonesPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportZones(ctx, simulationID, f, name)
		}},
		{intersectionsPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportIntersections(ctx, simulationID, f, name)
		}},
		{linksPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportLinks(ctx, simulationID, f, name)
		}},
		{functionsPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportFunctions(ctx, simulationID, f, name)
		}},
		{publicTransitPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportPublicTransit(ctx, simulationID, f, name)
		}},
		{travelerTypesPattern, func(ctx context.Context, f io.Reader, name string) KindResult {
			return im.ImportTravelerTypes(ctx, simulationID, f, name)
		}},
	}

	for _, step := range steps {
		for _, entry := range archive.File {
			if !step.pattern.MatchString(entry.Name) {
				continue
			}
			report.Results = append(report.Results, im.runEntry(ctx, entry, step.run))
			break
		}
	}

	// One matrix file per traveler type, in archive order.
	for _, entry := range archive.File {
		m := matrixPattern.FindStringSubmatch(entry.Name)
		if m == nil {
			continue
		}
		travelerTypeExternalID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		report.Results = append(report.Results, im.runEntry(ctx, entry,
			func(ctx context.Context, f io.Reader, name string) KindResult {
				return im.ImportMatrix(ctx, simulationID, travelerTypeExternalID, f, name)
			}))
	}

	for _, entry := range archive.File {
		if !pricingPattern.MatchString(entry.Name) {
			continue
		}
		report.Results = append(report.Results, im.runEntry(ctx, entry,
			func(ctx context.Context, f io.Reader, name string) KindResult {
				return im.ImportPricing(ctx, simulationID, f, name)
			}))
		break
	}

	return report, nil
}

func (im *Importer) runEntry(ctx context.Context, entry *zip.File, run func(ctx context.Context, file io.Reader, name string) KindResult) KindResult {
	f, err := entry.Open()
	if err != nil {
		return KindResult{Err: fmt.Errorf("open %s: %w", entry.Name, err)}
	}
	defer f.Close()
	return run(ctx, f, entry.Name)
}
