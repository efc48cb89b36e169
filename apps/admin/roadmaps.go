package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/roadmap"
)

func (cli *commandLine) resync(ctx context.Context, all bool, id string) error {
	var report roadmap.Report
	if all {
		var err error
		if report, err = cli.roadmaps.RepublishAll(ctx); err != nil {
			return err
		}
	} else {
		res, err := cli.roadmaps.Republish(ctx, id)
		if err != nil {
			return err
		}
		if res.OK() {
			report.Synced = append(report.Synced, res)
		} else {
			report.Failed = append(report.Failed, res)
		}
	}

	for _, res := range report.Synced {
		cli.printf("ok     %s\n", describe(res))
	}
	for _, res := range report.Failed {
		cli.printf("failed %s: %s\n", describe(res), res.Error)
	}
	cli.printf("%d synced, %d failed\n", len(report.Synced), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d roadmap(s) failed to sync", len(report.Failed))
	}
	return nil
}

func describe(res roadmap.SyncResult) string {
	s := fmt.Sprintf("%s %s (%s)", res.CompanyName, res.Role, res.Filename)
	if res.PublishedURL != "" {
		s += " " + res.PublishedURL
	}
	return s
}

// fetch prints the published page, or writes it to output when set.
func (cli *commandLine) fetch(ctx context.Context, filename, output string) error {
	content, err := cli.host.Fetch(ctx, filename)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cli.out.Write(content)
		return err
	}
	if err = os.WriteFile(output, content, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", output)
	}
	cli.printf("%s written to %s\n", filename, output)
	return nil
}
