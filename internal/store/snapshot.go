package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// rawFields lists the LoginParam fields in their unprefixed ("raw") key
// names, used both for the entered/tentative copy and, with a prefix, for
// the "configured_" verified snapshot and the "configured_raw_" last-known
// -good snapshot.
var rawFields = []string{
	"addr", "mail_pw",
	"mail_server", "mail_port", "mail_user", "imap_certificate_checks",
	"send_server", "send_port", "send_user", "send_pw", "smtp_certificate_checks",
	"server_flags",
}

// LoadRaw reads the unprefixed ("tentative") LoginParam fields.
func (db *DB) LoadRaw(ctx context.Context) (LoginParam, error) {
	return db.loadPrefixed(ctx, "")
}

// SaveRaw writes the unprefixed ("primary") LoginParam fields.
func (db *DB) SaveRaw(ctx context.Context, p LoginParam) error {
	return db.savePrefixed(ctx, "", p)
}

// LoadConfigured reads the "configured_" verified LoginParam snapshot.
func (db *DB) LoadConfigured(ctx context.Context) (LoginParam, error) {
	return db.loadPrefixed(ctx, "configured_")
}

// LoadConfiguredRaw reads the "configured_raw_" last-known-good snapshot.
func (db *DB) LoadConfiguredRaw(ctx context.Context) (LoginParam, error) {
	return db.loadPrefixed(ctx, "configured_raw_")
}

// PersistConfigured writes p under the "configured_" prefix and marks the
// account configured.
func (db *DB) PersistConfigured(ctx context.Context, p LoginParam) error {
	if err := db.savePrefixed(ctx, "configured_", p); err != nil {
		return err
	}
	return db.SetConfigBool(ctx, "configured", true)
}

// SnapshotSuccess copies the primary (unprefixed) keys into the
// "configured_raw_" snapshot, making them the new last-known-good input on
// a successful run.
func (db *DB) SnapshotSuccess(ctx context.Context) error {
	raw, err := db.LoadRaw(ctx)
	if err != nil {
		return err
	}
	return db.savePrefixed(ctx, "configured_raw_", raw)
}

// RestoreLastGood copies "configured_raw_" back into the primary
// (unprefixed) keys, used on pipeline failure so the UI sees a coherent,
// previously-working state. When no snapshot has ever been written (the
// account has never configured successfully) the primary keys are left
// alone: the originally entered values are all there is to show.
func (db *DB) RestoreLastGood(ctx context.Context) error {
	_, present, err := db.GetRawConfig(ctx, "configured_raw_addr")
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	snapshot, err := db.LoadConfiguredRaw(ctx)
	if err != nil {
		return err
	}
	return db.savePrefixed(ctx, "", snapshot)
}

func (db *DB) loadPrefixed(ctx context.Context, prefix string) (LoginParam, error) {
	var p LoginParam

	get := func(key string) (string, error) {
		v, _, err := db.GetRawConfig(ctx, prefix+key)
		return v, err
	}

	var err error
	if p.Addr, err = get("addr"); err != nil {
		return p, err
	}
	if p.MailPw, err = get("mail_pw"); err != nil {
		return p, err
	}
	if p.MailServer, err = get("mail_server"); err != nil {
		return p, err
	}
	if v, err := get("mail_port"); err != nil {
		return p, err
	} else if v != "" {
		p.MailPort, _ = strconv.Atoi(v)
	}
	if p.MailUser, err = get("mail_user"); err != nil {
		return p, err
	}
	if v, err := get("imap_certificate_checks"); err != nil {
		return p, err
	} else if v != "" {
		n, _ := strconv.Atoi(v)
		p.ImapCertificateChecks = CertificateChecks(n)
	}
	if p.SendServer, err = get("send_server"); err != nil {
		return p, err
	}
	if v, err := get("send_port"); err != nil {
		return p, err
	} else if v != "" {
		p.SendPort, _ = strconv.Atoi(v)
	}
	if p.SendUser, err = get("send_user"); err != nil {
		return p, err
	}
	if p.SendPw, err = get("send_pw"); err != nil {
		return p, err
	}
	if v, err := get("smtp_certificate_checks"); err != nil {
		return p, err
	} else if v != "" {
		n, _ := strconv.Atoi(v)
		p.SmtpCertificateChecks = CertificateChecks(n)
	}
	if v, err := get("server_flags"); err != nil {
		return p, err
	} else if v != "" {
		flags, _ := strconv.ParseInt(v, 10, 64)
		p.setServerFlags(flags)
	}

	return p, nil
}

func (db *DB) savePrefixed(ctx context.Context, prefix string, p LoginParam) error {
	set := func(key, value string) error {
		if value == "" {
			return db.SetRawConfig(ctx, prefix+key, nil)
		}
		return db.SetRawConfig(ctx, prefix+key, strPtr(value))
	}

	fields := []struct {
		key, value string
	}{
		{"addr", p.Addr},
		{"mail_pw", p.MailPw},
		{"mail_server", p.MailServer},
		{"mail_port", portStr(p.MailPort)},
		{"mail_user", p.MailUser},
		{"imap_certificate_checks", strconv.Itoa(int(p.ImapCertificateChecks))},
		{"send_server", p.SendServer},
		{"send_port", portStr(p.SendPort)},
		{"send_user", p.SendUser},
		{"send_pw", p.SendPw},
		{"smtp_certificate_checks", strconv.Itoa(int(p.SmtpCertificateChecks))},
		{"server_flags", strconv.FormatInt(p.serverFlags(), 10)},
	}

	for _, f := range fields {
		if err := set(f.key, f.value); err != nil {
			return fmt.Errorf("store: write %s%s: %w", prefix, f.key, err)
		}
	}
	return nil
}

func portStr(port int) string {
	if port == 0 {
		return ""
	}
	return strconv.Itoa(port)
}

// MailboxKey returns the config key under which a folder's
// "<uidvalidity>:<lastseenuid>" pair is stored.
func MailboxKey(folder string) string {
	return "imap.mailbox." + folder
}

// GetMailboxState reads the stored UIDVALIDITY/lastseenuid pair for folder.
// ok is false if no value has been stored yet.
func (db *DB) GetMailboxState(ctx context.Context, folder string) (uidvalidity uint32, lastSeenUID uint32, ok bool, err error) {
	v, present, err := db.GetRawConfig(ctx, MailboxKey(folder))
	if err != nil || !present || v == "" {
		return 0, 0, false, err
	}
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false, nil
	}
	uv, err1 := strconv.ParseUint(parts[0], 10, 32)
	lu, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false, nil
	}
	return uint32(uv), uint32(lu), true, nil
}

// SetMailboxState persists the UIDVALIDITY/lastseenuid pair for folder.
func (db *DB) SetMailboxState(ctx context.Context, folder string, uidvalidity, lastSeenUID uint32) error {
	value := fmt.Sprintf("%d:%d", uidvalidity, lastSeenUID)
	return db.SetRawConfig(ctx, MailboxKey(folder), &value)
}
