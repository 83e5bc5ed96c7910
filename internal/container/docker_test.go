package container

import (
	"bytes"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

func TestContainerSpec_PortsAndLimits(t *testing.T) {
	cc, hc := containerSpec(Config{
		Name:          "face-api",
		Image:         "face-api:latest",
		Env:           []string{"COMPRE_FACE_URL=http://localhost:8000/api/v1/verification/verify"},
		PortBindings:  map[int]int{5000: 5001},
		MemoryMB:      512,
		RestartPolicy: "unless-stopped",
		Labels:        map[string]string{"io.facedeploy.version": "1.2.0"},
	})

	if cc.Image != "face-api:latest" {
		t.Errorf("Image = %q", cc.Image)
	}
	if len(cc.Env) != 1 {
		t.Errorf("Env = %v", cc.Env)
	}
	port := nat.Port("5000/tcp")
	if _, ok := cc.ExposedPorts[port]; !ok {
		t.Errorf("port 5000/tcp not exposed: %v", cc.ExposedPorts)
	}
	bindings := hc.PortBindings[port]
	if len(bindings) != 1 || bindings[0].HostPort != "5001" || bindings[0].HostIP != "" {
		t.Errorf("PortBindings[5000/tcp] = %+v", bindings)
	}
	if hc.Resources.Memory != 512*1024*1024 {
		t.Errorf("Memory = %d", hc.Resources.Memory)
	}
	if hc.RestartPolicy.Name != container.RestartPolicyUnlessStopped {
		t.Errorf("RestartPolicy = %q", hc.RestartPolicy.Name)
	}
	if cc.Labels[ManagedLabel] != "true" || cc.Labels["io.facedeploy.version"] != "1.2.0" {
		t.Errorf("Labels = %v", cc.Labels)
	}
}

func TestContainerSpec_Defaults(t *testing.T) {
	cc, hc := containerSpec(Config{Name: "x", Image: "img"})
	if cc.ExposedPorts != nil || hc.PortBindings != nil {
		t.Errorf("expected no ports, got %v / %v", cc.ExposedPorts, hc.PortBindings)
	}
	if hc.Resources.Memory != 0 {
		t.Errorf("Memory = %d, want unlimited", hc.Resources.Memory)
	}
	if hc.RestartPolicy.Name != container.RestartPolicyDisabled {
		t.Errorf("RestartPolicy = %q, want no", hc.RestartPolicy.Name)
	}
	if cc.Labels[ManagedLabel] != "true" {
		t.Error("managed label missing")
	}
}

func TestCopyLogs_Multiplexed(t *testing.T) {
	var stream bytes.Buffer
	stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("listening on :5000\n"))
	stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("worker booted\n"))

	var out bytes.Buffer
	if err := copyLogs(&out, &stream, false); err != nil {
		t.Fatalf("copyLogs: %v", err)
	}
	if out.String() != "listening on :5000\nworker booted\n" {
		t.Errorf("copyLogs = %q", out.String())
	}
}

func TestCopyLogs_TTY(t *testing.T) {
	var out bytes.Buffer
	if err := copyLogs(&out, strings.NewReader("raw\n"), true); err != nil {
		t.Fatalf("copyLogs: %v", err)
	}
	if out.String() != "raw\n" {
		t.Errorf("copyLogs = %q", out.String())
	}
}

func TestTailArg(t *testing.T) {
	tests := map[int]string{0: "all", -1: "all", 50: "50"}
	for n, want := range tests {
		if got := tailArg(n); got != want {
			t.Errorf("tailArg(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestStreamBuildOutput(t *testing.T) {
	body := `{"stream":"Step 1/3 : FROM python:3.11-slim\n"}
{"stream":" ---> abc123\n"}
{"aux":{"ID":"sha256:abc"}}
`
	var out bytes.Buffer
	if err := streamBuildOutput(strings.NewReader(body), &out); err != nil {
		t.Fatalf("streamBuildOutput: %v", err)
	}
	if !strings.Contains(out.String(), "Step 1/3") || !strings.Contains(out.String(), "abc123") {
		t.Errorf("output = %q", out.String())
	}
}

func TestStreamBuildOutput_Error(t *testing.T) {
	body := `{"stream":"Step 2/3 : RUN pip install -r requirements.txt\n"}
{"error":"The command '/bin/sh -c pip install' returned a non-zero code: 1\n"}
`
	err := streamBuildOutput(strings.NewReader(body), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected build error")
	}
	if !strings.Contains(err.Error(), "non-zero code: 1") {
		t.Errorf("error = %v", err)
	}
}
