package metadata

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

const DefaultNugetSource string = "https://api.nuget.org/v3/index.json"

var ErrNoMatchingVersion = errors.New("no package version satisfies the constraint")

// Assembly is one assembly file extracted from a package.
type Assembly struct {
	Name string
	Data []byte
}

// NugetClient fetches packages from a NuGet v3 feed.
type NugetClient struct {
	Source string
	Client *http.Client
}

func NewNugetClient(source string) *NugetClient {
	if source == "" {
		source = DefaultNugetSource
	}

	return &NugetClient{Source: source, Client: http.DefaultClient}
}

// FetchAssemblies downloads the newest version of the package matching
// constraint (any version when empty) and returns the assemblies under lib/.
func (client *NugetClient) FetchAssemblies(ctx context.Context, packageID string, constraint string) (string, []Assembly, error) {
	packageID = strings.ToLower(packageID)
	baseAddress, err := client.getBaseAddress(ctx)
	if err != nil {
		return "", nil, err
	}

	versionsResponse, err := client.queryGet(ctx, fmt.Sprintf("%s%s/index.json", baseAddress, packageID))
	if err != nil {
		return "", nil, fmt.Errorf("list versions of %s: %w", packageID, err)
	}
	versions, err := parse[packageVersions](versionsResponse)
	if err != nil {
		return "", nil, fmt.Errorf("parse versions of %s: %w", packageID, err)
	}

	selected, err := selectVersion(versions.Versions, constraint)
	if err != nil {
		return "", nil, fmt.Errorf("package %s: %w", packageID, err)
	}

	nugetBytes, err := client.queryGet(ctx, fmt.Sprintf("%s%s/%s/%s.%s.nupkg", baseAddress, packageID, selected, packageID, selected))
	if err != nil {
		return "", nil, fmt.Errorf("download %s %s: %w", packageID, selected, err)
	}

	assemblies, err := extractAssemblies(nugetBytes)
	if err != nil {
		return "", nil, fmt.Errorf("unpack %s %s: %w", packageID, selected, err)
	}

	return selected, assemblies, nil
}

// Picks the highest version satisfying constraint. Unparsable versions are skipped.
func selectVersion(available []string, constraint string) (string, error) {
	var constraints version.Constraints
	if constraint != "" {
		parsed, err := version.NewConstraint(constraint)
		if err != nil {
			return "", fmt.Errorf("invalid version constraint %q: %w", constraint, err)
		}
		constraints = parsed
	}

	orderedVersions := make([]*version.Version, 0, len(available))
	for _, versionString := range available {
		v, err := version.NewVersion(versionString)
		if err != nil {
			continue
		}
		if constraints != nil && !constraints.Check(v) {
			continue
		}
		orderedVersions = append(orderedVersions, v)
	}

	if len(orderedVersions) == 0 {
		return "", ErrNoMatchingVersion
	}

	sort.Sort(version.Collection(orderedVersions))
	return orderedVersions[len(orderedVersions)-1].Original(), nil
}

func extractAssemblies(nupkg []byte) ([]Assembly, error) {
	bytesReader := bytes.NewReader(nupkg)
	nuget, err := zip.NewReader(bytesReader, int64(bytesReader.Len()))
	if err != nil {
		return nil, err
	}

	assemblies := make([]Assembly, 0)
	for _, file := range nuget.File {
		if !strings.HasPrefix(file.Name, "lib/") || !strings.EqualFold(path.Ext(file.Name), ".dll") {
			continue
		}

		reader, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		assemblies = append(assemblies, Assembly{Name: file.Name, Data: data})
	}

	return assemblies, nil
}

func (client *NugetClient) getBaseAddress(ctx context.Context) (string, error) {
	response, err := client.queryGet(ctx, client.Source)
	if err != nil {
		return "", fmt.Errorf("query service index: %w", err)
	}
	index, err := parse[nugetIndex](response)
	if err != nil {
		return "", fmt.Errorf("parse service index: %w", err)
	}

	for _, resource := range index.Resources {
		if strings.Contains(resource.Type, "PackageBaseAddress") {
			return resource.Id, nil
		}
	}

	return "", errors.New("service index has no PackageBaseAddress resource")
}

func parse[T interface{}](source []byte) (T, error) {
	var parsedBody T
	err := json.Unmarshal(source, &parsedBody)
	return parsedBody, err
}

func (client *NugetClient) queryGet(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := client.Client.Do(request)
	if err != nil {
		return nil, err
	}

	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, response.Status)
	}

	return io.ReadAll(response.Body)
}

type nugetIndex struct {
	Resources []nugetResource `json:"resources"`
}

type nugetResource struct {
	Id   string `json:"@id"`
	Type string `json:"@type"`
}

type packageVersions struct {
	Versions []string `json:"versions"`
}
