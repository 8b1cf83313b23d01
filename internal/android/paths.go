// Package android knows the on-device layout of the target app and of the
// OS settings stores, and provides the device manager that manipulates them
// through an elevated shell.
package android

import "fmt"

// TargetPackage is the app whose account state this tool captures and
// restores.
const TargetPackage = "com.nebulata.starforge"

// AgentPackage is the package name under which the in-process interceptor
// agent is installed on the device.
const AgentPackage = "dev.gsbak.agent"

// Data directories of the target app. Both are snapshotted on backup and
// replaced wholesale on restore.
const (
	DataRoot       = "/data/data/" + TargetPackage
	CacheDir       = DataRoot + "/cache"
	SharedPrefsDir = DataRoot + "/shared_prefs"

	// PrefsFileName is the shared-preferences file holding the account
	// identifiers.
	PrefsFileName = TargetPackage + ".v2.playerprefs.xml"
	PrefsPath     = SharedPrefsDir + "/" + PrefsFileName
)

// Converter binaries for the binary settings-store format. Presence is
// checked by path existence; not every build ships them.
const (
	Abx2XmlPath = "/system/bin/abx2xml"
	Xml2AbxPath = "/system/bin/xml2abx"
)

// AdCachePath is the world-readable flat file through which the restore
// orchestrator hands identifiers to the in-process interceptor.
const AdCachePath = "/data/local/tmp/gsbak_adid_cache"

// AdCacheMode is the permission string for AdCachePath. The interceptor
// runs under the target app's uid and can only read, never write.
const AdCacheMode = "644"

// Ownership and mode the OS expects on the identifier store. Settings files
// with wrong ownership are discarded by the platform on boot.
const (
	StoreOwner = "system:system"
	StoreMode  = "600"
)

// PackagesListPath maps installed packages to their assigned uids.
const PackagesListPath = "/data/system/packages.list"

// SSAIDStorePath returns the per-user identifier store file.
func SSAIDStorePath(user int) string {
	return fmt.Sprintf("/data/system/users/%d/settings_ssaid.xml", user)
}

// SSAIDBackupPath returns the safety-copy sibling of the identifier store.
func SSAIDBackupPath(user int) string {
	return SSAIDStorePath(user) + ".bak"
}

// SettingsDBPath returns the per-user settings database used as the SQL
// fallback store on builds without the file-based store.
func SettingsDBPath(user int) string {
	return fmt.Sprintf("/data/system/users/%d/settings.db", user)
}
