package cmd

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/JacobCoffee/python-source-builds/pkg"
)

type templateSpec struct {
	URL      string
	Dest     string
	Sha256   string
	Strip    int
	MarkExec []string `yaml:"markExec,omitempty"`
}

type templateConfig struct {
	Vars      map[string]string
	Templates map[string]templateSpec
}

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold <template> <name>",
	Short: "Scaffolds a new module from a remote template",
	Long: `Downloads the named template listed in templates.yml, verifies its checksum
and unpacks it into the template's destination directory under the given
module name.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		pkg.PrintTask("Loading template config")
		root, err := pkg.GetProjectRoot()
		if err != nil {
			return err
		}

		cfg, err := loadTemplates(root)
		if err != nil {
			return err
		}

		tmpl, ok := cfg.Templates[args[0]]
		if !ok {
			return eris.Errorf("Template %s is not listed in templates.yml", args[0])
		}

		tmpl.URL = expandTemplateVars(tmpl.URL, cfg.Vars)

		dest := filepath.Join(root, tmpl.Dest, args[1])
		_, err = os.Stat(dest)
		if err == nil {
			return eris.Errorf("%s already exists, refusing to overwrite it", dest)
		}
		if !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "Failed to check %s", dest)
		}

		pkg.PrintTask("Downloading template")
		pkg.PrintSubtask(args[0] + ":  " + tmpl.URL)

		archive, digest, err := downloadTemplate(tmpl.URL)
		if archive != nil {
			defer func() {
				archive.Close()
				os.Remove(archive.Name())
			}()
		}
		if err != nil {
			return err
		}

		if digest != tmpl.Sha256 {
			if !update {
				return eris.Errorf("Checksum check failed for %s (got %s)", tmpl.URL, digest)
			}
			pkg.PrintSubtask("New checksum: " + digest)
		}

		pkg.PrintTask("Unpacking template")
		extractor, err := getExtractor(tmpl.URL)
		if err != nil {
			return err
		}

		_, err = archive.Seek(0, io.SeekStart)
		if err != nil {
			return eris.Wrap(err, "Failed to rewind downloaded archive")
		}

		stat, err := archive.Stat()
		if err != nil {
			return err
		}

		bar := getProgressBar(stat.Size(), "      extract")
		err = extractor(archive, bar, dest, tmpl)
		if err != nil {
			return err
		}

		for _, binPath := range tmpl.MarkExec {
			binPath = filepath.Join(dest, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0700)
			if err != nil {
				return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
			}
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scaffoldCmd)
	scaffoldCmd.Flags().BoolP("update", "u", false, "accept a changed checksum and print the new value")
}

func loadTemplates(projectRoot string) (templateConfig, error) {
	var cfg templateConfig

	cfgPath := filepath.Join(projectRoot, "templates.yml")
	cfgData, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfg, eris.Wrapf(err, "Could not open file %s.", cfgPath)
	}

	err = yaml.Unmarshal(cfgData, &cfg)
	if err != nil {
		return cfg, eris.Wrapf(err, "Failed to parse %s.", cfgPath)
	}

	return cfg, nil
}

var templateVarMatcher = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

func expandTemplateVars(url string, vars map[string]string) string {
	return templateVarMatcher.ReplaceAllStringFunc(url, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// downloadTemplate fetches the archive into a temporary file and returns the
// open handle along with the hex-encoded SHA-256 of the downloaded bytes.
func downloadTemplate(url string) (*os.File, string, error) {
	client := &http.Client{
		Timeout: time.Minute * 30,
	}

	arHandle, err := os.CreateTemp("", "template_dl")
	if err != nil {
		return nil, "", eris.Wrap(err, "Failed to create temporary download file")
	}

	resp, err := client.Get(url)
	if err != nil {
		return arHandle, "", eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return arHandle, "", eris.Errorf("Download of %s failed with status %s", url, resp.Status)
	}

	hash := sha256.New()
	bar := getProgressBar(resp.ContentLength, "     download")
	_, err = io.Copy(io.MultiWriter(arHandle, hash, bar), resp.Body)
	bar.Finish()
	if err != nil {
		return arHandle, "", eris.Wrapf(err, "Failed during download of %s", url)
	}

	return arHandle, hex.EncodeToString(hash.Sum(nil)), nil
}

type archiveExtractor func(*os.File, *progressbar.ProgressBar, string, templateSpec) error

func getExtractor(url string) (archiveExtractor, error) {
	if strings.HasSuffix(url, ".zip") {
		return extractZip, nil
	}

	if strings.HasSuffix(url, ".tar.gz") {
		return func(f *os.File, bar *progressbar.ProgressBar, dest string, tmpl templateSpec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, f, bar, dest, tmpl)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.bz2") {
		return func(f *os.File, bar *progressbar.ProgressBar, dest string, tmpl templateSpec) error {
			return extractTar(bzip2.NewReader(f), f, bar, dest, tmpl)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.xz") {
		return func(f *os.File, bar *progressbar.ProgressBar, dest string, tmpl templateSpec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, f, bar, dest, tmpl)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.br") {
		return func(f *os.File, bar *progressbar.ProgressBar, dest string, tmpl templateSpec) error {
			return extractTar(brotli.NewReader(f), f, bar, dest, tmpl)
		}, nil
	}

	return nil, eris.New("Archive format not supported")
}

// openExtractorDest normalizes the entry path, strips the configured number
// of leading elements and opens the resulting file below destPath.
func openExtractorDest(destPath, item string, tmpl templateSpec) (*os.File, string, error) {
	pathParts := strings.Split(filepath.Clean(item), string(filepath.Separator))
	if len(pathParts) <= tmpl.Strip {
		return nil, "/", nil
	}

	dest := filepath.Join(destPath, strings.Join(pathParts[tmpl.Strip:], string(filepath.Separator)))
	if dest == destPath || !strings.HasPrefix(dest, destPath+string(filepath.Separator)) {
		return nil, "/", nil
	}

	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, 0770)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, tmpl templateSpec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, tmpl)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			destHandle.Close()
			return eris.Wrap(err, "Failed to open archive entry")
		}

		_, err = io.Copy(destHandle, itemHandle)
		itemHandle.Close()
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, tmpl templateSpec) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, tmpl)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			destHandle.Close()
			err := os.Remove(dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to remove placeholder file %s", dest)
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		_, err = io.Copy(destHandle, archive)
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		os.Chmod(dest, fi.Mode())

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}
