package gateway

import (
	"encoding/json"
)

// 信封 msgType 常量（从 App 源码分析得出）
const (
	MsgTypeAuth     = 0 // 认证请求
	MsgTypeAuthResp = 1 // 认证响应
	MsgTypeGet      = 2 // 读/查询请求
	MsgTypeSet      = 3 // 写/命令请求
	MsgTypeResponse = 4 // 通用响应/ACK
	MsgTypePush     = 5 // 网关主动推送
)

// Modbus TCP 设置载荷使用的 data 字段键
const (
	ServiceModbusTCP = "modbusTcpServer"
	KeyService       = "service"
	KeyModbusEnable  = "modbusEnable" // 0=关闭 1=开启
	KeyModbusPort    = "modbusPort"   // TCP 端口，默认 502
	KeyModbusIP      = "modbusIp"     // 可选绑定IP，解码时容忍
	KeyUsername      = "username"
	KeyPassword      = "password"
	KeyToken         = "token"
	KeySN            = "sn"
)

// requestEnvelope 出站信封（客户端 → 网关）
// 字段顺序与 App 抓包一致：msgType | sn | token | data
type requestEnvelope struct {
	MsgType int            `json:"msgType"`
	SN      string         `json:"sn"`
	Token   string         `json:"token,omitempty"`
	Data    map[string]any `json:"data"`
}

// Envelope 入站信封（网关 → 客户端），code==0 表示成功
// data 保留原始JSON：不同固件版本会附加未知键，解码时不得报错
type Envelope struct {
	MsgType int
	Code    int
	Msg     string
	Data    json.RawMessage
	Raw     string
}

// EncodeLogin 构造登录信封。登录是唯一不携带 token 的出站消息；
// sn 允许为空，网关会在响应中回填序列号
func EncodeLogin(serial, username, password string) (string, error) {
	env := requestEnvelope{
		MsgType: MsgTypeAuth,
		SN:      serial,
		Data: map[string]any{
			KeyUsername: username,
			KeyPassword: password,
		},
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeQuery 构造只读查询信封（msgType=2），data 仅含 service 标识
func EncodeQuery(token, serial, service string) (string, error) {
	env := requestEnvelope{
		MsgType: MsgTypeGet,
		SN:      serial,
		Token:   token,
		Data:    map[string]any{KeyService: service},
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeCommand 构造写命令信封（msgType=3），payload 合并进 data
func EncodeCommand(token, serial, service string, payload map[string]any) (string, error) {
	data := map[string]any{KeyService: service}
	for k, v := range payload {
		data[k] = v
	}
	env := requestEnvelope{
		MsgType: MsgTypeSet,
		SN:      serial,
		Token:   token,
		Data:    data,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode 解析入站帧。非法JSON或缺少 msgType/code 返回 *ProtocolError，
// data 中的未知键一律容忍（固件加字段属于正常演进）
func Decode(text string) (*Envelope, error) {
	var wire struct {
		MsgType *int            `json:"msgType"`
		Code    *int            `json:"code"`
		Msg     string          `json:"msg"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, &ProtocolError{Reason: "frame is not valid JSON: " + err.Error(), Raw: text}
	}
	if wire.MsgType == nil {
		return nil, &ProtocolError{Reason: "frame lacks msgType", Raw: text}
	}
	if wire.Code == nil {
		return nil, &ProtocolError{Reason: "frame lacks code", Raw: text}
	}
	return &Envelope{
		MsgType: *wire.MsgType,
		Code:    *wire.Code,
		Msg:     wire.Msg,
		Data:    wire.Data,
		Raw:     text,
	}, nil
}

// loginData 登录响应 data 载荷
type loginData struct {
	Token string `json:"token"`
	SN    string `json:"sn"`
}

// decodeLoginData 从登录响应中提取 token 与序列号
func decodeLoginData(env *Envelope) (loginData, error) {
	var d loginData
	if len(env.Data) == 0 {
		return d, &ProtocolError{Reason: "login response has empty data", Raw: env.Raw}
	}
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return d, &ProtocolError{Reason: "login data unparseable: " + err.Error(), Raw: env.Raw}
	}
	if d.Token == "" {
		return d, &ProtocolError{Reason: "login response lacks token", Raw: env.Raw}
	}
	return d, nil
}

// modbusData Modbus TCP 状态 data 载荷（宽松解码）
type modbusData struct {
	ModbusEnable *int   `json:"modbusEnable"`
	ModbusPort   *int   `json:"modbusPort"`
	ModbusIP     string `json:"modbusIp"`
}

// decodeModbusData 从查询响应中提取 Modbus TCP 配置
func decodeModbusData(env *Envelope) (ModbusServerConfig, error) {
	var cfg ModbusServerConfig
	if len(env.Data) == 0 {
		return cfg, &ProtocolError{Reason: "modbus status response has empty data", Raw: env.Raw}
	}
	var d modbusData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return cfg, &ProtocolError{Reason: "modbus status data unparseable: " + err.Error(), Raw: env.Raw}
	}
	if d.ModbusEnable == nil || d.ModbusPort == nil {
		return cfg, &ProtocolError{Reason: "modbus status data lacks modbusEnable/modbusPort", Raw: env.Raw}
	}
	cfg.Enabled = *d.ModbusEnable != 0
	cfg.Port = *d.ModbusPort
	return cfg, nil
}
