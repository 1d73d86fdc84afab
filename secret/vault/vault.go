package vault

import (
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/picostack/gitadapter/secret"
)

// VaultSecrets implements a secret.Store backed by Hashicorp Vault
type VaultSecrets struct {
	client     *api.Client
	enginepath string
	path       string
	version    int
}

var _ secret.Store = &VaultSecrets{}

// New creates a new Vault client, pings the server and detects the KV engine
// version mounted at the first component of basepath.
func New(addr, basepath, token string) (v *VaultSecrets, err error) {
	v = &VaultSecrets{}

	config := api.DefaultConfig()
	config.Address = addr
	config.HttpClient = cleanhttp.DefaultClient()

	if v.client, err = api.NewClient(config); err != nil {
		return nil, errors.Wrap(err, "failed to create vault client")
	}
	v.client.SetToken(token)

	if _, err = v.client.Auth().Token().LookupSelf(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to vault server")
	}

	// engine is the first component of base, then the rest is the actual path.
	v.enginepath, v.path = splitPath(basepath)

	if v.version, err = getKVEngineVersion(v.client, v.enginepath); err != nil {
		return nil, errors.Wrapf(err, "failed to determine KV engine version at '/%s'", v.enginepath)
	}

	zap.L().Debug("created new vault client for secrets engine",
		zap.Int("kv_version", v.version),
		zap.String("basepath", basepath),
		zap.String("enginepath", v.enginepath))

	return v, nil
}

// GetSecrets implements secret.Store
func (v *VaultSecrets) GetSecrets(name string) (map[string]string, error) {
	path := v.buildPath(name)

	zap.L().Debug("looking for secrets in vault",
		zap.String("name", name),
		zap.String("path", path))

	secret, err := v.client.Logical().Read(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read secret")
	}
	if secret == nil {
		zap.L().Debug("did not find secrets in vault",
			zap.String("name", name),
			zap.String("path", path))
		return nil, nil
	}

	env, err := kvToMap(v.version, secret.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unwrap secret data")
	}

	zap.L().Debug("found secrets in vault",
		zap.Strings("keys", keys(env)))

	return env, nil
}

func splitPath(basepath string) (string, string) {
	basepath = strings.Trim(basepath, "/")
	s := strings.SplitN(basepath, "/", 2)
	if len(s) == 1 {
		return basepath, "/"
	}
	return s[0], s[1]
}

// builds the correct path to a secret based on the kv version
func (v *VaultSecrets) buildPath(item string) string {
	if v.version == 1 {
		return path.Join(v.enginepath, v.path, item)
	}
	return path.Join(v.enginepath, "data", v.path, item)
}

// pulls out the kv secret data for v1 and v2 secrets
func kvToMap(version int, data map[string]interface{}) (env map[string]string, err error) {
	switch version {
	case 1:
		return stringify(data), nil
	case 2:
		kv, ok := data["data"].(map[string]interface{})
		if !ok {
			return nil, errors.New("could not interpret KV v2 response data as hashtable")
		}
		return stringify(kv), nil
	}
	return nil, errors.Errorf("unrecognised KV version: %d", version)
}

func stringify(data map[string]interface{}) map[string]string {
	env := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			env[k] = s
		} else {
			env[k] = fmt.Sprint(v)
		}
	}
	return env
}

func keys(m map[string]string) (k []string) {
	for x := range m {
		k = append(k, x)
	}
	return
}

// only KV v2 has a /config path, so the engine is probed for it first. If it
// does not exist the engine's base path is listed: when that succeeds it's a
// v1, when it doesn't it might still be an empty v1 and there is no telling.
func getKVEngineVersion(client *api.Client, basepath string) (int, error) {
	s, err := client.Logical().Read(path.Join(basepath, "config"))
	if err != nil {
		return 0, errors.Wrap(err, "failed to check engine config path for version query")
	}
	if s != nil {
		return 2, nil
	}

	l, err := client.Logical().List(basepath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list possible KV v1 engine")
	}
	if l == nil {
		return 0, errors.New("could not read secrets engine, it's either an empty KV v1 engine or does not exist")
	}
	return 1, nil
}
