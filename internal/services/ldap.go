package services

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/huangang/tasksentry/internal/config"
)

// ErrLDAPRejected means the directory refused the user's credentials.
var ErrLDAPRejected = errors.New("ldap: invalid credentials")

// LDAPAuthenticator verifies credentials against a directory server.
type LDAPAuthenticator interface {
	IsEnabled() bool
	Authenticate(username, password string) (*LDAPUser, error)
}

type LDAPService struct {
	config *config.LDAPConfig
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	return &LDAPService{config: cfg}
}

func (s *LDAPService) IsEnabled() bool {
	return s != nil && s.config != nil && s.config.Enabled && s.config.Host != ""
}

func (s *LDAPService) dial() (*ldap.Conn, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if s.config.UseSSL {
		return ldap.DialURL("ldaps://"+addr,
			ldap.DialWithDialer(dialer),
			ldap.DialWithTLSConfig(&tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}))
	}
	return ldap.DialURL("ldap://"+addr, ldap.DialWithDialer(dialer))
}

// Authenticate looks the user up with the service account and then binds as
// the user to verify the password. A wrong password or unknown user yields
// ErrLDAPRejected; any other error is an infrastructure fault.
func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("LDAP is not enabled")
	}
	// An empty password would be an unauthenticated bind, which many
	// servers accept.
	if password == "" {
		return nil, ErrLDAPRejected
	}

	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if s.config.BindDN != "" {
		if err := conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	searchFilter := fmt.Sprintf(s.config.UserFilter, ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		s.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 10, false,
		searchFilter,
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}
	if result == nil || len(result.Entries) != 1 {
		return nil, ErrLDAPRejected
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, ErrLDAPRejected
		}
		return nil, fmt.Errorf("LDAP user bind failed: %w", err)
	}

	user := &LDAPUser{
		DN:          entry.DN,
		Username:    entry.GetAttributeValue("uid"),
		Email:       entry.GetAttributeValue("mail"),
		DisplayName: entry.GetAttributeValue("cn"),
	}
	// Active Directory
	if user.Username == "" {
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	if user.Username == "" {
		user.Username = username
	}

	return user, nil
}

type LDAPUser struct {
	DN          string
	Username    string
	Email       string
	DisplayName string
}
