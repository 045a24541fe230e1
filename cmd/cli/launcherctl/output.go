package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"

	flags "github.com/jessevdk/go-flags"
)

// Exit codes by error type, anything unlisted exits with 1
var exitCodes = map[errors.ErrorType]int{
	errors.ErrorTypeValidation:         2,
	errors.ErrorTypeKindMismatch:       2,
	errors.ErrorTypeUnknownService:     3,
	errors.ErrorTypeNotFound:           3,
	errors.ErrorTypePathNotFound:       3,
	errors.ErrorTypeAlreadyRunning:     4,
	errors.ErrorTypeLaunchFailed:       5,
	errors.ErrorTypePartialStopFailure: 6,
	errors.ErrorTypePortReconcile:      6,
}

func exitCode(err error) int {
	if _, ok := err.(*flags.Error); ok {
		return 2
	}
	if code, ok := exitCodes[errors.TypeOf(err)]; ok {
		return code
	}
	return 1
}

func printJSON(v interface{}) bool {
	if !opts.JSON {
		return false
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
	return true
}

func table(render func(w io.Writer)) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	render(w)
	_ = w.Flush()
}

func printStartResults(results []domain.StartResult) {
	if len(results) == 0 || printJSON(results) {
		return
	}
	table(func(w io.Writer) {
		fmt.Fprintln(w, "PORT\tPID\tRESULT")
		for _, result := range results {
			if result.Failure != nil {
				fmt.Fprintf(w, "%s\t-\t%s\n", portText(result.Port), result.Failure.Message)
				continue
			}
			fmt.Fprintf(w, "%d\t%d\tstarted, http://localhost:%d\n", result.Port, result.Record.PID, result.Port)
		}
	})
}

func portText(port int) string {
	if port == 0 {
		return "default"
	}
	return strconv.Itoa(port)
}

func printStopResult(result domain.StopResult) {
	if len(result.Stopped)+len(result.Failed) == 0 || printJSON(result) {
		return
	}
	table(func(w io.Writer) {
		fmt.Fprintln(w, "KEY\tPID\tRESULT")
		for _, record := range result.Stopped {
			fmt.Fprintf(w, "%s\t%d\tstopped\n", record.Key(), record.PID)
		}
		for _, failed := range result.Failed {
			fmt.Fprintf(w, "%s\t%d\t%s\n", failed.Record.Key(), failed.Record.PID, failed.Failure.Message)
		}
	})
}

func printServices(services []catalog.ServiceDefinition) {
	if printJSON(services) {
		return
	}
	table(func(w io.Writer) {
		fmt.Fprintln(w, "NAME\tKIND\tLANGUAGE\tPORT\tHEALTH\tPATH")
		for _, service := range services {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				service.Name, service.Kind, service.Language, service.DefaultPort, service.HealthCheckPath, service.Path)
		}
	})
}

func renderInstances(w io.Writer, instances []domain.InstanceStatus) {
	fmt.Fprintln(w, "KEY\tPID\tKIND\tSTATE\tUPTIME\tURL")
	for _, instance := range instances {
		state := "running"
		if !instance.Alive {
			state = "dead"
		}
		record := instance.Record
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\thttp://localhost:%d%s\n",
			record.Key(), record.PID, record.Kind, state, uptime(record), record.Port, record.HealthCheckPath)
	}
}

func uptime(record registry.ProcessRecord) string {
	if record.StartedAtEpochSeconds == 0 {
		return "-"
	}
	return time.Since(record.StartedAt()).Truncate(time.Second).String()
}

func printInstances(instances []domain.InstanceStatus) {
	if printJSON(instances) {
		return
	}
	if len(instances) == 0 {
		fmt.Println("No running instances")
		return
	}
	table(func(w io.Writer) { renderInstances(w, instances) })
}

// printIfChanged prints the instances when their rendering differs from last and returns the new rendering
func printIfChanged(last string, taken time.Time, instances []domain.InstanceStatus) string {
	var buffer bytes.Buffer
	w := tabwriter.NewWriter(&buffer, 0, 4, 2, ' ', 0)
	for _, instance := range instances {
		state := "running"
		if !instance.Alive {
			state = "dead"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", instance.Record.Key(), instance.Record.PID, state)
	}
	_ = w.Flush()

	current := buffer.String()
	if current == last {
		return last
	}
	if opts.JSON {
		printJSON(instances)
		return current
	}
	fmt.Printf("--- %s, %d instances\n", taken.Format(time.TimeOnly), len(instances))
	fmt.Print(current)
	return current
}

func printProbeReports(reports []domain.ProbeReport) {
	if printJSON(reports) {
		return
	}
	table(func(w io.Writer) {
		fmt.Fprintln(w, "KEY\tHEALTHY\tSTATUS\tTIME\tMESSAGE")
		for _, report := range reports {
			fmt.Fprintf(w, "%s\t%v\t%d\t%dms\t%s\n",
				report.Record.Key(), report.Healthy, report.StatusCode, report.DurationMillis, report.Message)
		}
	})
}

func printPruned(removed []registry.ProcessRecord) {
	if printJSON(removed) {
		return
	}
	if len(removed) == 0 {
		fmt.Println("Registry is clean")
		return
	}
	for _, record := range removed {
		fmt.Printf("removed %s (PID %d)\n", record.Key(), record.PID)
	}
}

func printCleanup(result domain.CleanupResult) {
	if printJSON(result) {
		return
	}
	fmt.Printf("Checked %d ports, freed %d, pruned %d stale entries\n", len(result.Ports), result.Freed, len(result.Pruned))
}
