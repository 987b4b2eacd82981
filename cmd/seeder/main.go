// Command seeder uploads template-generated diagnostic blobs into the
// configured containers, giving the pipeline realistic input for demos and
// load tests.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/your-org/logwarden/pkg/logger"
	"github.com/your-org/logwarden/pkg/storage/blobstore"
)

type seederEnv struct {
	ConnectionString string `env:"LOGWARDEN_STORAGE_CONNECTION_STRING"`
	LogLevel         string `env:"SEEDER_LOG_LEVEL" envDefault:"info"`
}

// seedSpec is the YAML seed file: per-container record templates and how
// many blobs to generate from each.
type seedSpec struct {
	Seeds []seed `yaml:"seeds"`
}

type seed struct {
	Container string `yaml:"container"`
	// Blobs is how many blobs to upload for this container. Default 1.
	Blobs int `yaml:"blobs"`
	// RecordsPerBlob is how many template records each blob carries,
	// newline-delimited. Default 1.
	RecordsPerBlob int `yaml:"records_per_blob"`
	// Gzip compresses the blob and appends .gz to its name.
	Gzip bool `yaml:"gzip"`
	// Templates cycle through the records of a blob.
	Templates []map[string]any `yaml:"templates"`
}

func main() {
	specPath := flag.String("spec", "seeds.yml", "path to the YAML seed spec")
	flag.Parse()

	ec := seederEnv{}
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("parse environment: %v", err)
	}
	if ec.ConnectionString == "" {
		log.Fatal("LOGWARDEN_STORAGE_CONNECTION_STRING is required")
	}

	logr, err := logger.New(ec.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	data, err := os.ReadFile(*specPath)
	if err != nil {
		logr.Fatal("read seed spec", zap.Error(err))
	}
	var spec seedSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		logr.Fatal("parse seed spec", zap.Error(err))
	}

	storeCfg, err := blobstore.ParseConnectionString(ec.ConnectionString)
	if err != nil {
		logr.Fatal("parse connection string", zap.Error(err))
	}
	client, err := blobstore.New(storeCfg)
	if err != nil {
		logr.Fatal("init blob store", zap.Error(err))
	}

	ctx := context.Background()
	for _, s := range spec.Seeds {
		if err := run(ctx, client, s, logr); err != nil {
			logr.Fatal("seed container", zap.String("container", s.Container), zap.Error(err))
		}
	}
}

func run(ctx context.Context, client blobstore.Client, s seed, logr *zap.Logger) error {
	if len(s.Templates) == 0 {
		return fmt.Errorf("seed for %s has no templates", s.Container)
	}
	if s.Blobs <= 0 {
		s.Blobs = 1
	}
	if s.RecordsPerBlob <= 0 {
		s.RecordsPerBlob = 1
	}

	if err := client.EnsureContainer(ctx, s.Container); err != nil {
		return err
	}

	for i := 0; i < s.Blobs; i++ {
		body, err := renderBlob(s)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("%s/%s.json", time.Now().UTC().Format("2006/01/02"), uuid.NewString())
		contentType := "application/x-ndjson"
		if s.Gzip {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(body); err != nil {
				return fmt.Errorf("compress blob: %w", err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("compress blob: %w", err)
			}
			body = buf.Bytes()
			name += ".gz"
			contentType = "application/gzip"
		}

		if err := client.Put(ctx, s.Container, name, body, contentType); err != nil {
			return err
		}
		logr.Info("seeded blob",
			zap.String("container", s.Container),
			zap.String("blob", name),
			zap.Int("records", s.RecordsPerBlob))
	}
	return nil
}

// renderBlob produces one newline-delimited JSON body, cycling through the
// templates and stamping each record with a fresh time.
func renderBlob(s seed) ([]byte, error) {
	var buf bytes.Buffer
	for i := 0; i < s.RecordsPerBlob; i++ {
		rec := make(map[string]any, len(s.Templates[i%len(s.Templates)])+1)
		for k, v := range s.Templates[i%len(s.Templates)] {
			rec[k] = v
		}
		if _, ok := rec["time"]; !ok {
			rec["time"] = time.Now().UTC().Format(time.RFC3339)
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal template record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
