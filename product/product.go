package product

// Version 版本号
const Version = "0.1.0"

// VersionID 版本序号（配置文件迁移用）
const VersionID = 1
