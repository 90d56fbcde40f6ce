package hdfs

import "text/template"

var coreSiteTemplate = template.Must(template.New("core-site.xml").Parse(`<?xml version="1.0"?>
<configuration>
  <property>
    <name>fs.defaultFS</name>
    <value>hdfs://{{.MasterPrivateAddress}}:9000</value>
  </property>
</configuration>
`))

var hdfsSiteTemplate = template.Must(template.New("hdfs-site.xml").Parse(`<?xml version="1.0"?>
<configuration>
  <property>
    <name>dfs.replication</name>
    <value>{{.Replication}}</value>
  </property>
  <property>
    <name>dfs.namenode.name.dir</name>
    <value>{{.NamenodeDataDirs}}</value>
  </property>
  <property>
    <name>dfs.datanode.data.dir</name>
    <value>{{.DatanodeDataDirs}}</value>
  </property>
</configuration>
`))

var slavesTemplate = template.Must(template.New("slaves").Parse(`{{range .SlavePrivateAddresses}}{{.}}
{{end}}`))

type siteData struct {
	MasterPrivateAddress string
	NamenodeDataDirs     string
	DatanodeDataDirs     string
	Replication          int
}

type slavesData struct {
	SlavePrivateAddresses []string
}
