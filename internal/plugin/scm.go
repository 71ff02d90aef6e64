package plugin

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LookupSCMURL returns the clone URL of the repository at location: the
// "origin" remote for git, the default path for mercurial. It returns ""
// when nothing is found.
func LookupSCMURL(location string) string {
	if isDir(filepath.Join(location, ".git")) {
		return iniValue(filepath.Join(location, ".git", "config"), `remote "origin"`, "url")
	}
	if isDir(filepath.Join(location, ".hg")) {
		return iniValue(filepath.Join(location, ".hg", "hgrc"), "paths", "default")
	}
	return ""
}

// LookupSCMCommit returns the commit id checked out in the git repository
// at location, or "" when it cannot be determined.
func LookupSCMCommit(location string) string {
	gitDir := filepath.Join(location, ".git")
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return ""
	}
	ref, isRef := strings.CutPrefix(strings.TrimSpace(string(head)), "ref: ")
	if !isRef {
		return ref
	}
	if id, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		return strings.TrimSpace(string(id))
	}
	return packedRef(filepath.Join(gitDir, "packed-refs"), ref)
}

func packedRef(path, ref string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[1] == ref {
			return fields[0]
		}
	}
	return ""
}

// iniValue reads key from section of a git or mercurial config file.
func iniValue(path, section, key string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	current := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if current != section {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if found && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
