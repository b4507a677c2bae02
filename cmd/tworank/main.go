// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/cmd/version"
	"github.com/gorse-io/tworank/config"
	"github.com/gorse-io/tworank/model/cf"
	"github.com/gorse-io/tworank/pipeline"
	"github.com/gorse-io/tworank/server"
	"github.com/gorse-io/tworank/storage/artifact"
	"github.com/gorse-io/tworank/storage/blob"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "tworank",
	Short: "Two-stage retrieval and ranking recommender.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		opts, err := log.OptionsFromFlags(cmd.Flags(), debug)
		if err == nil {
			err = log.SetLogger(opts)
		}
		if err != nil {
			log.Logger().Fatal("failed to set logger", zap.Error(err))
		}
	},
}

var preprocessCommand = &cobra.Command{
	Use:   "preprocess",
	Short: "Encode raw reviews and split them by time.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, p := setup(cmd)
		ctx, cancel := signalContext()
		defer cancel()
		raw, closeRaw := openRaw(conf.Data.RawDataPath)
		defer closeRaw()
		if _, err := p.Preprocess(ctx, raw); err != nil {
			log.Logger().Fatal("failed to preprocess", zap.Error(err))
		}
	},
}

var trainRetrievalCommand = &cobra.Command{
	Use:   "train-retrieval",
	Short: "Train the ALS retrieval model.",
	Run: func(cmd *cobra.Command, args []string) {
		_, p := setup(cmd)
		ctx, cancel := signalContext()
		defer cancel()
		if _, err := p.TrainRetrieval(ctx); err != nil {
			log.Logger().Fatal("failed to train retrieval model", zap.Error(err))
		}
	},
}

var trainRankerCommand = &cobra.Command{
	Use:   "train-ranker",
	Short: "Train the LambdaMART ranker.",
	Run: func(cmd *cobra.Command, args []string) {
		_, p := setup(cmd)
		ctx, cancel := signalContext()
		defer cancel()
		if _, err := p.TrainRanker(ctx); err != nil {
			log.Logger().Fatal("failed to train ranker", zap.Error(err))
		}
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate global recall of the retrieval model on the test set.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, p := setup(cmd)
		k := conf.Evaluation.K
		if cmd.Flags().Changed("k") {
			k, _ = cmd.Flags().GetInt("k")
		}
		ctx, cancel := signalContext()
		defer cancel()
		start := time.Now()
		result, err := p.Evaluate(ctx, k)
		if err != nil {
			log.Logger().Fatal("failed to evaluate", zap.Error(err))
		}
		renderRecall(k, result, time.Since(start))
	},
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run preprocessing, training and evaluation in order.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, p := setup(cmd)
		ctx, cancel := signalContext()
		defer cancel()
		raw, closeRaw := openRaw(conf.Data.RawDataPath)
		defer closeRaw()
		start := time.Now()
		result, err := p.RunAll(ctx, raw)
		if err != nil {
			log.Logger().Fatal("failed to run pipeline", zap.Error(err))
		}
		renderRecall(conf.Evaluation.K, result, time.Since(start))
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, p := setup(cmd)
		if cmd.Flags().Changed("port") {
			conf.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		state, err := server.LoadState(context.Background(), conf, p.Store)
		if err != nil {
			log.Logger().Fatal("failed to load models", zap.Error(err))
		}
		log.Logger().Info("load models", zap.Int32("n_users", state.CountUsers()))
		s := server.NewRestServer(state, conf.Server.Host, conf.Server.Port)
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				log.Logger().Error("failed to shutdown http server", zap.Error(err))
			}
		}()
		if err = s.StartHttpServer(); err != nil {
			log.Logger().Fatal("failed to start http server", zap.Error(err))
		}
		log.Logger().Info("stop tworank server successfully")
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Check the version of tworank",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	evaluateCommand.Flags().Int("k", 40, "number of retrieved items")
	serveCommand.Flags().IntP("port", "p", 8000, "port of the http server")
	rootCommand.AddCommand(preprocessCommand, trainRetrievalCommand, trainRankerCommand,
		evaluateCommand, runCommand, serveCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

// setup loads the configuration and opens the artifact store.
func setup(cmd *cobra.Command) (*config.Config, *pipeline.Pipeline) {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	store, err := blob.Open(conf.Storage)
	if err != nil {
		log.Logger().Fatal("failed to open storage", zap.String("type", conf.Storage.Type), zap.Error(err))
	}
	return conf, pipeline.NewPipeline(conf, artifact.NewStore(store))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openRaw opens the raw dataset behind a progress bar.
func openRaw(path string) (io.Reader, func()) {
	file, err := os.Open(path)
	if err != nil {
		log.Logger().Fatal("failed to open raw data", zap.String("path", path), zap.Error(errors.Trace(err)))
	}
	stat, err := file.Stat()
	if err != nil {
		log.Logger().Fatal("failed to stat raw data", zap.String("path", path), zap.Error(errors.Trace(err)))
	}
	reader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "Loading "+path))
	return &reader, func() {
		if err := file.Close(); err != nil {
			log.Logger().Warn("failed to close raw data", zap.Error(err))
		}
	}
}

func renderRecall(k int, result cf.RecallResult, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"K", strconv.Itoa(k)},
		{"Users", strconv.Itoa(result.Users)},
		{"Hits", strconv.Itoa(result.Hits)},
		{"Targets", strconv.Itoa(result.Targets)},
		{fmt.Sprintf("Global Recall@%d", k), fmt.Sprintf("%.4f", result.Recall)},
		{"Time", elapsed.String()},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			log.Logger().Error("failed to render table", zap.Error(err))
		}
	}
	if err := table.Render(); err != nil {
		log.Logger().Error("failed to render table", zap.Error(err))
	}
}
