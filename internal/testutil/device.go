package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gsbak/internal/shell"
)

// FakeDevice is an in-memory device behind the Executor interface. It
// interprets the command vocabulary the device manager emits (test, cat via
// base64, cp, mv, rm, mkdir, ls, stat, chown, chmod, tar, the store
// converters, sqlite3, am, sync, grep, id) against maps of files and
// directories, so the real command builders are exercised end to end.
//
// Switches simulate degraded devices: Fail injects errors by command
// substring, ConvertFails breaks the store converters, UID changes the
// answer to id -u.
type FakeDevice struct {
	mu sync.Mutex

	Files  map[string][]byte
	Dirs   map[string]bool
	Owners map[string]string // path -> "owner:group"
	Modes  map[string]string // path -> octal string

	DBs map[string]*FakeSettingsDB

	Stopped  []string // packages force-stopped, in order
	Commands []string // every command executed, in order
	Syncs    int

	Fail         map[string]error // command substring -> injected error
	ConvertFails bool
	UID          string
}

// FakeSettingsDB emulates the ssaid table of a settings database.
type FakeSettingsDB struct {
	Rows []SSAIDRow
}

// SSAIDRow is one row of the emulated ssaid table.
type SSAIDRow struct {
	ID            int
	Name          string
	Value         string
	Package       string
	DefaultValue  string
	DefaultSysSet string
}

// NewFakeDevice creates an empty fake device answering id -u with 0.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		Files:  make(map[string][]byte),
		Dirs:   make(map[string]bool),
		Owners: make(map[string]string),
		Modes:  make(map[string]string),
		DBs:    make(map[string]*FakeSettingsDB),
		Fail:   make(map[string]error),
		UID:    "0",
	}
}

// AddFile stores a file and registers its parent directories.
func (d *FakeDevice) AddFile(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addFileLocked(path, data)
}

// AddDir registers a directory and its parents.
func (d *FakeDevice) AddDir(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addParentsLocked(path + "/x")
}

// SetStat records ownership and mode for a path, as stat will report them.
func (d *FakeDevice) SetStat(path, ownerGroup, mode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Owners[path] = ownerGroup
	d.Modes[path] = mode
}

// AddSettingsDB registers a settings database at path and returns its
// emulated ssaid table.
func (d *FakeDevice) AddSettingsDB(path string) *FakeSettingsDB {
	d.mu.Lock()
	defer d.mu.Unlock()
	db := &FakeSettingsDB{}
	d.DBs[path] = db
	d.addFileLocked(path, []byte("SQLite format 3\x00"))
	return db
}

// FileContent returns a copy of a stored file's bytes.
func (d *FakeDevice) FileContent(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.Files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (d *FakeDevice) addFileLocked(path string, data []byte) {
	d.Files[path] = append([]byte(nil), data...)
	d.addParentsLocked(path)
}

func (d *FakeDevice) addParentsLocked(path string) {
	for {
		i := strings.LastIndexByte(path, '/')
		if i <= 0 {
			return
		}
		path = path[:i]
		d.Dirs[path] = true
	}
}

// Execute interprets one elevated shell command.
func (d *FakeDevice) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Commands = append(d.Commands, command)

	for substr, err := range d.Fail {
		if strings.Contains(command, substr) {
			return "", err
		}
	}

	t := splitCommand(command)
	if len(t) == 0 {
		return "", fmt.Errorf("fake device: empty command")
	}

	switch {
	case t[0] == "am" && len(t) >= 3 && t[1] == "force-stop":
		d.Stopped = append(d.Stopped, t[2])
		return "", nil

	case t[0] == "[" && len(t) >= 4 && t[1] == "-e":
		if d.existsLocked(t[2]) {
			return "1", nil
		}
		return "0", nil

	case t[0] == "[" && len(t) >= 4 && t[1] == "-d":
		if d.Dirs[t[2]] {
			return "1", nil
		}
		return "0", nil

	case t[0] == "ls" && len(t) == 3 && t[1] == "-1":
		return d.listLocked(command, t[2])

	case t[0] == "base64" && len(t) == 2:
		data, ok := d.Files[t[1]]
		if !ok {
			return "", d.failure(command, "base64: "+t[1]+": No such file or directory")
		}
		return base64.StdEncoding.EncodeToString(data), nil

	case t[0] == ":" && len(t) == 3 && t[1] == ">":
		d.addFileLocked(t[2], nil)
		return "", nil

	case t[0] == "echo" && len(t) == 7 && t[2] == "|" && t[3] == "base64" && t[5] == ">>":
		chunk, err := base64.StdEncoding.DecodeString(t[1])
		if err != nil {
			return "", d.failure(command, "base64: invalid input")
		}
		d.Files[t[6]] = append(d.Files[t[6]], chunk...)
		d.addParentsLocked(t[6])
		return "", nil

	case t[0] == "chmod":
		return d.chmodLocked(command, t[1:])

	case t[0] == "chown":
		return d.chownLocked(command, t[1:])

	case t[0] == "mv" && len(t) == 3:
		return d.moveLocked(command, t[1], t[2])

	case t[0] == "cp" && len(t) == 4 && t[1] == "-r":
		return d.copyTreeLocked(command, t[2], t[3])

	case t[0] == "cp" && len(t) == 3:
		data, ok := d.Files[t[1]]
		if !ok {
			return "", d.failure(command, "cp: "+t[1]+": No such file or directory")
		}
		d.addFileLocked(t[2], data)
		return "", nil

	case t[0] == "rm" && len(t) >= 3 && t[1] == "-rf":
		for _, p := range t[2:] {
			d.removeTreeLocked(p)
		}
		return "", nil

	case t[0] == "rm" && len(t) >= 3 && t[1] == "-f":
		for _, p := range t[2:] {
			delete(d.Files, p)
		}
		return "", nil

	case t[0] == "mkdir" && len(t) == 3 && t[1] == "-p":
		d.Dirs[t[2]] = true
		d.addParentsLocked(t[2] + "/x")
		return "", nil

	case t[0] == "toybox" && len(t) == 5 && t[1] == "stat":
		return d.statLocked(command, t[4])

	case t[0] == "tar" && len(t) >= 2 && t[1] == "-cz":
		return d.tarLocked(command, t[2:])

	case t[0] == "tar" && len(t) == 6 && t[1] == "-xz":
		return d.untarLocked(command, t[3], t[5])

	case t[0] == "sync":
		d.Syncs++
		return "", nil

	case t[0] == "grep" && len(t) == 3:
		return d.grepLocked(command, t[1], t[2])

	case t[0] == "id" && len(t) == 2 && t[1] == "-u":
		return d.UID, nil

	case t[0] == "sqlite3" && len(t) == 3:
		return d.sqliteLocked(command, t[1], t[2])

	case strings.HasSuffix(t[0], "abx2xml") && len(t) == 3:
		return d.abxToXMLLocked(command, t[1], t[2])

	case strings.HasSuffix(t[0], "xml2abx") && len(t) == 3:
		return d.xmlToABXLocked(command, t[1], t[2])
	}

	return "", fmt.Errorf("fake device: unrecognized command %q", command)
}

func (d *FakeDevice) failure(command, stderr string) error {
	return &shell.CommandError{Command: command, ExitCode: 1, Stderr: stderr}
}

func (d *FakeDevice) existsLocked(path string) bool {
	_, isFile := d.Files[path]
	return isFile || d.Dirs[path]
}

func (d *FakeDevice) listLocked(command, dir string) (string, error) {
	if !d.Dirs[dir] {
		return "", d.failure(command, "ls: "+dir+": No such file or directory")
	}
	seen := make(map[string]bool)
	prefix := dir + "/"
	for p := range d.Files {
		if strings.HasPrefix(p, prefix) {
			rest := strings.TrimPrefix(p, prefix)
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			seen[rest] = true
		}
	}
	for p := range d.Dirs {
		if strings.HasPrefix(p, prefix) {
			rest := strings.TrimPrefix(p, prefix)
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			seen[rest] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (d *FakeDevice) chmodLocked(command string, args []string) (string, error) {
	recursive := false
	if args[0] == "-R" {
		recursive = true
		args = args[1:]
	}
	if len(args) != 2 {
		return "", d.failure(command, "chmod: bad arguments")
	}
	mode, path := args[0], args[1]
	if !d.existsLocked(path) {
		return "", d.failure(command, "chmod: "+path+": No such file or directory")
	}
	d.Modes[path] = mode
	if recursive {
		for p := range d.Files {
			if strings.HasPrefix(p, path+"/") {
				d.Modes[p] = mode
			}
		}
		for p := range d.Dirs {
			if strings.HasPrefix(p, path+"/") {
				d.Modes[p] = mode
			}
		}
	}
	return "", nil
}

func (d *FakeDevice) chownLocked(command string, args []string) (string, error) {
	recursive := false
	if args[0] == "-R" {
		recursive = true
		args = args[1:]
	}
	if len(args) != 2 {
		return "", d.failure(command, "chown: bad arguments")
	}
	owner, path := args[0], args[1]
	if !d.existsLocked(path) {
		return "", d.failure(command, "chown: "+path+": No such file or directory")
	}
	d.Owners[path] = owner
	if recursive {
		for p := range d.Files {
			if strings.HasPrefix(p, path+"/") {
				d.Owners[p] = owner
			}
		}
		for p := range d.Dirs {
			if strings.HasPrefix(p, path+"/") {
				d.Owners[p] = owner
			}
		}
	}
	return "", nil
}

func (d *FakeDevice) moveLocked(command, src, dst string) (string, error) {
	if data, ok := d.Files[src]; ok {
		d.addFileLocked(dst, data)
		delete(d.Files, src)
		if m, ok := d.Modes[src]; ok {
			d.Modes[dst] = m
			delete(d.Modes, src)
		}
		return "", nil
	}
	if d.Dirs[src] {
		if _, err := d.copyTreeLocked(command, src, dst); err != nil {
			return "", err
		}
		d.removeTreeLocked(src)
		return "", nil
	}
	return "", d.failure(command, "mv: "+src+": No such file or directory")
}

func (d *FakeDevice) copyTreeLocked(command, src, dst string) (string, error) {
	if data, ok := d.Files[src]; ok {
		d.addFileLocked(dst, data)
		return "", nil
	}
	if !d.Dirs[src] {
		return "", d.failure(command, "cp: "+src+": No such file or directory")
	}
	d.Dirs[dst] = true
	d.addParentsLocked(dst + "/x")
	prefix := src + "/"
	for p, data := range d.Files {
		if strings.HasPrefix(p, prefix) {
			d.addFileLocked(dst+"/"+strings.TrimPrefix(p, prefix), data)
		}
	}
	for p := range d.Dirs {
		if strings.HasPrefix(p, prefix) {
			d.Dirs[dst+"/"+strings.TrimPrefix(p, prefix)] = true
		}
	}
	return "", nil
}

func (d *FakeDevice) removeTreeLocked(path string) {
	delete(d.Files, path)
	delete(d.Dirs, path)
	prefix := path + "/"
	for p := range d.Files {
		if strings.HasPrefix(p, prefix) {
			delete(d.Files, p)
		}
	}
	for p := range d.Dirs {
		if strings.HasPrefix(p, prefix) {
			delete(d.Dirs, p)
		}
	}
}

func (d *FakeDevice) statLocked(command, path string) (string, error) {
	if !d.existsLocked(path) {
		return "", d.failure(command, "stat: "+path+": No such file or directory")
	}
	owner := d.Owners[path]
	if owner == "" {
		owner = "root:root"
	}
	mode := d.Modes[path]
	if mode == "" {
		if d.Dirs[path] {
			mode = "755"
		} else {
			mode = "644"
		}
	}
	return strings.Replace(owner, ":", " ", 1) + " " + mode, nil
}

func (d *FakeDevice) tarLocked(command string, args []string) (string, error) {
	var dir string
	var excludes []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-C" && i+1 < len(args):
			dir = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--exclude="):
			excludes = append(excludes, strings.TrimPrefix(args[i], "--exclude="))
		}
	}
	if dir == "" || !d.Dirs[dir] {
		return "", d.failure(command, "tar: "+dir+": No such file or directory")
	}

	excluded := func(rel string) bool {
		base := rel
		if i := strings.LastIndexByte(rel, '/'); i >= 0 {
			base = rel[i+1:]
		}
		for _, pat := range excludes {
			if matchPattern(pat, base) || matchPattern(pat, rel) {
				return true
			}
		}
		return false
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	mtime := time.Unix(1700000000, 0)

	prefix := dir + "/"
	var dirs, files []string
	for p := range d.Dirs {
		if strings.HasPrefix(p, prefix) {
			dirs = append(dirs, p)
		}
	}
	for p := range d.Files {
		if strings.HasPrefix(p, prefix) {
			files = append(files, p)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)

	for _, p := range dirs {
		rel := strings.TrimPrefix(p, prefix)
		if excluded(rel) {
			continue
		}
		hdr := &tar.Header{
			Name:     "./" + rel + "/",
			Typeflag: tar.TypeDir,
			Mode:     0755,
			ModTime:  mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", d.failure(command, "tar: "+err.Error())
		}
	}
	for _, p := range files {
		rel := strings.TrimPrefix(p, prefix)
		if excluded(rel) {
			continue
		}
		data := d.Files[p]
		hdr := &tar.Header{
			Name:     "./" + rel,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", d.failure(command, "tar: "+err.Error())
		}
		if _, err := tw.Write(data); err != nil {
			return "", d.failure(command, "tar: "+err.Error())
		}
	}
	if err := tw.Close(); err != nil {
		return "", d.failure(command, "tar: "+err.Error())
	}
	if err := gz.Close(); err != nil {
		return "", d.failure(command, "tar: "+err.Error())
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (d *FakeDevice) untarLocked(command, file, dir string) (string, error) {
	data, ok := d.Files[file]
	if !ok {
		return "", d.failure(command, "tar: "+file+": No such file or directory")
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", d.failure(command, "tar: "+err.Error())
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", d.failure(command, "tar: "+err.Error())
		}
		name := strings.TrimPrefix(strings.TrimPrefix(hdr.Name, "./"), "/")
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			continue
		}
		target := dir + "/" + name
		switch hdr.Typeflag {
		case tar.TypeDir:
			d.Dirs[target] = true
			d.addParentsLocked(target + "/x")
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return "", d.failure(command, "tar: "+err.Error())
			}
			d.addFileLocked(target, content)
		}
	}
	return "", nil
}

func (d *FakeDevice) grepLocked(command, pattern, file string) (string, error) {
	data, ok := d.Files[file]
	if !ok {
		return "", d.failure(command, "grep: "+file+": No such file or directory")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", d.failure(command, "grep: bad pattern")
	}
	var matched []string
	for _, line := range strings.Split(string(data), "\n") {
		if re.MatchString(line) {
			matched = append(matched, line)
		}
	}
	if len(matched) == 0 {
		return "", d.failure(command, "")
	}
	return strings.Join(matched, "\n"), nil
}

func (d *FakeDevice) abxToXMLLocked(command, src, dst string) (string, error) {
	if d.ConvertFails {
		return "", d.failure(command, "abx2xml: conversion error")
	}
	data, ok := d.Files[src]
	if !ok {
		return "", d.failure(command, "abx2xml: "+src+": No such file or directory")
	}
	if !bytes.HasPrefix(data, abxMagic) {
		return "", d.failure(command, "abx2xml: "+src+": not a binary xml file")
	}
	d.addFileLocked(dst, data[len(abxMagic):])
	return "", nil
}

func (d *FakeDevice) xmlToABXLocked(command, src, dst string) (string, error) {
	if d.ConvertFails {
		return "", d.failure(command, "xml2abx: conversion error")
	}
	data, ok := d.Files[src]
	if !ok {
		return "", d.failure(command, "xml2abx: "+src+": No such file or directory")
	}
	d.addFileLocked(dst, append(append([]byte(nil), abxMagic...), data...))
	return "", nil
}

// abxMagic mirrors the binary container signature. The fake's "binary"
// form is the text form behind this prefix, which is all the converter
// round-trip needs.
var abxMagic = []byte{0x41, 0x42, 0x58, 0x00}

// ABXBlob wraps text store content in the fake binary container form.
func ABXBlob(text []byte) []byte {
	return append(append([]byte(nil), abxMagic...), text...)
}

var (
	ssaidUpdateRe = regexp.MustCompile(`^UPDATE ssaid SET value='([^']*)', defaultValue='([^']*)' WHERE package='([^']*)'; SELECT changes\(\);$`)
	ssaidInsertRe = regexp.MustCompile(`^INSERT INTO ssaid \(_id, name, value, package, defaultValue, defaultSysSet\) VALUES \(\(SELECT COALESCE\(MAX\(_id\), 0\) \+ 1 FROM ssaid\), '([^']*)', '([^']*)', '([^']*)', '([^']*)', 'true'\);$`)
	ssaidSelectRe = regexp.MustCompile(`^SELECT value FROM ssaid WHERE package='([^']*)';$`)
)

func (d *FakeDevice) sqliteLocked(command, dbPath, sql string) (string, error) {
	db, ok := d.DBs[dbPath]
	if !ok {
		return "", d.failure(command, "Error: unable to open database \""+dbPath+"\"")
	}

	if m := ssaidUpdateRe.FindStringSubmatch(sql); m != nil {
		value, defValue, pkg := m[1], m[2], m[3]
		changed := 0
		for i := range db.Rows {
			if db.Rows[i].Package == pkg {
				db.Rows[i].Value = value
				db.Rows[i].DefaultValue = defValue
				changed++
			}
		}
		return strconv.Itoa(changed), nil
	}

	if m := ssaidInsertRe.FindStringSubmatch(sql); m != nil {
		maxID := 0
		for _, r := range db.Rows {
			if r.ID > maxID {
				maxID = r.ID
			}
		}
		db.Rows = append(db.Rows, SSAIDRow{
			ID:            maxID + 1,
			Name:          m[1],
			Value:         m[2],
			Package:       m[3],
			DefaultValue:  m[4],
			DefaultSysSet: "true",
		})
		return "", nil
	}

	if m := ssaidSelectRe.FindStringSubmatch(sql); m != nil {
		for _, r := range db.Rows {
			if r.Package == m[1] {
				return r.Value, nil
			}
		}
		return "", nil
	}

	return "", d.failure(command, "Error: near \""+sql+"\": syntax error")
}

// matchPattern is path.Match with bad patterns treated as non-matching.
func matchPattern(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return ok
}

// splitCommand tokenizes a shell command the way a POSIX shell would for
// the subset the builders produce: space-separated words with single-quote
// quoting and the '\'' escape.
func splitCommand(cmd string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	hasCur := false
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case inQuote:
			if c == '\'' {
				inQuote = false
			} else {
				cur.WriteByte(c)
			}
			hasCur = true
		case c == '\'':
			inQuote = true
			hasCur = true
		case c == '\\' && i+1 < len(cmd) && cmd[i+1] == '\'':
			cur.WriteByte('\'')
			i++
			hasCur = true
		case c == ' ' || c == '\t':
			if hasCur {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasCur = false
			}
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
	if hasCur {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
