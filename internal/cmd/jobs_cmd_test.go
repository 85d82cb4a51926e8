package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershell/corefish/internal/job"
)

func TestJobsCmd_RequiresAtLeastOneArg(t *testing.T) {
	require.Error(t, jobsCmd.Args(jobsCmd, []string{}))
	require.NoError(t, jobsCmd.Args(jobsCmd, []string{"echo"}))
}

func TestPrintJobList_EmptyAndPopulated(t *testing.T) {
	tr := job.New()
	printJobList(tr, "before") // no active jobs; exercised for side effects only

	tr.CreateJob("sleep 1")
	printJobList(tr, "after")
}
