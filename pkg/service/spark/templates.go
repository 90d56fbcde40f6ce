package spark

import "text/template"

// sparkEnvTemplate renders conf/spark-env.sh. Master and slaves all get
// the same file; Spark's own scripts decide which variables matter to
// which role at startup.
var sparkEnvTemplate = template.Must(template.New("spark-env.sh").Parse(`#!/usr/bin/env bash

export SPARK_MASTER_HOST={{.MasterPrivateAddress}}
export SPARK_MASTER_PORT=7077
export SPARK_MASTER_WEBUI_PORT=8080
export SPARK_WORKER_WEBUI_PORT=8081
export SPARK_LOCAL_DIRS={{.LocalDirs}}
export SPARK_WORKER_DIR={{.StoragePath}}/spark/work
export SPARK_WORKER_CORES={{.WorkerCores}}
export SPARK_EXECUTOR_CORES={{.ExecutorCores}}
export SPARK_EXECUTOR_INSTANCES={{.ExecutorInstances}}
{{- if .PublicDNS}}
export SPARK_PUBLIC_DNS={{.PublicDNS}}
{{- end}}
{{- if .HDFSMasterAddress}}
export HADOOP_CONF_DIR=/etc/hadoop/conf
{{- end}}
{{- if .JavaHome}}
export JAVA_HOME={{.JavaHome}}
{{- end}}
export PYSPARK_PYTHON=python3
export PATH=$PATH:{{.InstallDir}}/bin
`))

// slavesTemplate renders conf/slaves (conf/workers in Spark 3.x), one
// private address per line.
var slavesTemplate = template.Must(template.New("slaves").Parse(`{{range .SlavePrivateAddresses}}{{.}}
{{end}}`))

type envData struct {
	MasterPrivateAddress string
	StoragePath          string
	LocalDirs            string
	InstallDir           string
	WorkerCores          int
	ExecutorCores        int
	ExecutorInstances    int
	PublicDNS            string
	HDFSMasterAddress    string
	JavaHome             string
}

type slavesData struct {
	SlavePrivateAddresses []string
}
