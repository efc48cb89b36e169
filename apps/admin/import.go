package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/csvimport"
	"github.com/niat-ops/opsboard/core/tracking"
)

func (cli *commandLine) importFile(ctx context.Context, target, path string) error {
	if !slices.Contains(tracking.ImportTargets, target) {
		return fmt.Errorf("unknown import target %q", target)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer func() { _ = f.Close() }()

	rows, err := csvimport.ParseCSV(f)
	if err != nil {
		return err
	}

	var n int
	switch target {
	case tracking.ImportCompanyStatus:
		n, err = cli.companies.CreateMany(ctx, tracking.GroupCompanyStatuses(rows))
	case tracking.ImportInteractionFeedback:
		n, err = cli.feedback.CreateMany(ctx, tracking.GroupInteractionFeedback(rows))
	default:
		return fmt.Errorf("unknown import target %q", target)
	}
	if err != nil {
		return errors.Wrap(err, "importing records")
	}
	cli.printf("%d rows read, %d records inserted\n", len(rows), n)
	return nil
}
