package ci

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/danmuck/cictl/internal/tools"
)

const (
	EnvAppVeyor     = "APPVEYOR"
	EnvTravis       = "TRAVIS"
	EnvTravisOSName = "TRAVIS_OS_NAME"

	envTravisBuild   = "TRAVIS_BUILD_NUMBER"
	envTravisBranch  = "TRAVIS_BRANCH"
	envAppVeyorBuild = "APPVEYOR_BUILD_NUMBER"
	envAppVeyorRef   = "APPVEYOR_REPO_BRANCH"
)

type Provider string

const (
	ProviderAppVeyor Provider = "appveyor"
	ProviderTravis   Provider = "travis"
	ProviderLocal    Provider = "local"
)

type OS string

const (
	OSLinux   OS = "linux"
	OSMac     OS = "osx"
	OSWindows OS = "windows"
)

// Platform is the detected build host.
type Platform struct {
	Provider Provider
	OS       OS
}

func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.Provider, p.OS)
}

// Detect selects the platform from CI environment variables. AppVeyor wins
// over Travis when both are set; AppVeyor builds always run on Windows.
func Detect(lookup tools.LookupFunc) Platform {
	if truthy(lookup.Getenv(EnvAppVeyor)) {
		return Platform{Provider: ProviderAppVeyor, OS: OSWindows}
	}
	if truthy(lookup.Getenv(EnvTravis)) {
		buildOS, ok := ParseOS(lookup.Getenv(EnvTravisOSName))
		if !ok {
			buildOS = OSLinux
		}
		return Platform{Provider: ProviderTravis, OS: buildOS}
	}
	return Platform{Provider: ProviderLocal, OS: HostOS()}
}

// HostOS maps runtime.GOOS onto the CI OS names.
func HostOS() OS {
	return goosToOS(runtime.GOOS)
}

func goosToOS(goos string) OS {
	switch goos {
	case "darwin":
		return OSMac
	case "windows":
		return OSWindows
	default:
		return OSLinux
	}
}

// ParseOS accepts CI and Go spellings of an OS name.
func ParseOS(raw string) (OS, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "osx", "macos", "darwin", "mac":
		return OSMac, true
	case "linux":
		return OSLinux, true
	case "windows", "win":
		return OSWindows, true
	default:
		return "", false
	}
}

// ParsePlatform parses a "provider/os" or bare "os" override.
func ParsePlatform(raw string) (Platform, error) {
	raw = strings.TrimSpace(raw)
	provider := ProviderLocal
	osName := raw
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		provider = Provider(strings.ToLower(strings.TrimSpace(raw[:i])))
		osName = raw[i+1:]
	}
	switch provider {
	case ProviderAppVeyor, ProviderTravis, ProviderLocal:
	default:
		return Platform{}, fmt.Errorf("unknown ci provider %q", provider)
	}
	buildOS, ok := ParseOS(osName)
	if !ok {
		return Platform{}, fmt.Errorf("unknown os %q", osName)
	}
	return Platform{Provider: provider, OS: buildOS}, nil
}

// BuildLabels returns build metadata for metric grouping.
func BuildLabels(p Platform, lookup tools.LookupFunc) map[string]string {
	labels := map[string]string{
		"provider": string(p.Provider),
		"os":       string(p.OS),
	}
	switch p.Provider {
	case ProviderTravis:
		labels["build"] = lookup.Getenv(envTravisBuild)
		labels["branch"] = lookup.Getenv(envTravisBranch)
	case ProviderAppVeyor:
		labels["build"] = lookup.Getenv(envAppVeyorBuild)
		labels["branch"] = lookup.Getenv(envAppVeyorRef)
	}
	return labels
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
